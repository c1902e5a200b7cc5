// Package service exposes the functions of a document over gRPC as the
// numfn.v1.Evaluator service. The schema is parsed from an embedded .proto
// at start-up and requests are handled as dynamic messages.
package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/document"
	"github.com/funvibe/numfn/internal/emitter"
	"github.com/funvibe/numfn/internal/logio"
	"github.com/funvibe/numfn/internal/session"
	"github.com/funvibe/numfn/internal/vm"
)

// Server evaluates the functions of one library. Units are compiled on
// first use and shared; every in-flight Evaluate borrows its own Machine.
type Server struct {
	lib *document.Library
	cfg *config.Config
	log *logio.Logger
	sd  *desc.ServiceDescriptor

	mu        sync.Mutex
	functions map[string]*compiled
}

type compiled struct {
	unit     *vm.Unit
	machines sync.Pool
}

// New prepares a server for lib.
func New(lib *document.Library, cfg *config.Config, log *logio.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logio.Discard()
	}
	sd, err := Schema()
	if err != nil {
		return nil, err
	}
	return &Server{lib: lib, cfg: cfg, log: log, sd: sd, functions: make(map[string]*compiled)}, nil
}

type handler func(s *Server, ctx context.Context, in *dynamic.Message, out *dynamic.Message) error

var handlers = map[string]handler{
	MethodEvaluate:    (*Server).evaluate,
	MethodEmit:        (*Server).emit,
	MethodDisassemble: (*Server).disassemble,
}

// Register adds the Evaluator service to g.
func (s *Server) Register(g *grpc.Server) {
	sd := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*interface{})(nil),
		Methods:     []grpc.MethodDesc{},
		Streams:     []grpc.StreamDesc{},
		Metadata:    s.sd.GetFile().GetName(),
	}
	for _, md := range s.sd.GetMethods() {
		h := handlers[md.GetName()]
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := dynamic.NewMessage(md.GetInputType())
				if err := dec(in); err != nil {
					return nil, err
				}
				call := func(ctx context.Context, req interface{}) (interface{}, error) {
					out := dynamic.NewMessage(md.GetOutputType())
					if err := h(srv.(*Server), ctx, req.(*dynamic.Message), out); err != nil {
						return nil, err
					}
					return out, nil
				}
				if interceptor == nil {
					return call(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(md.GetName())}
				return interceptor(ctx, in, info, call)
			},
		})
	}
	g.RegisterService(sd, s)
}

// NewGRPCServer returns a grpc.Server with the service registered and a
// logging interceptor installed.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.UnaryInterceptor(s.intercept))
	g := grpc.NewServer(opts...)
	s.Register(g)
	return g
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	g := s.NewGRPCServer()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			g.GracefulStop()
		case <-done:
		}
	}()
	defer close(done)
	s.log.Verbosef("serving %s on %s", s.lib.Path, lis.Addr())
	if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

func (s *Server) intercept(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp interface{}, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = status.Errorf(codes.Internal, "%s: %v", info.FullMethod, r)
		}
		s.log.Verbosef("%s %s (%v)", info.FullMethod, status.Code(err), time.Since(start))
	}()
	return next(ctx, req)
}

// function returns the compiled unit of name, compiling it on first use.
func (s *Server) function(name string) (*compiled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.functions[name]; ok {
		return c, nil
	}
	def, err := s.lib.Lookup(name)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	u, err := vm.Compile(session.New(s.lib), def)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	// Probe the capacity once so that pooled machines cannot fail.
	m, err := vm.NewMachine(u, vm.WithStackCapacity(s.cfg.StackCapacity))
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	c := &compiled{unit: u}
	c.machines.New = func() interface{} {
		m, _ := vm.NewMachine(u, vm.WithStackCapacity(s.cfg.StackCapacity))
		return m
	}
	c.machines.Put(m)
	s.functions[name] = c
	s.log.Verbosef("compiled %s: %s", name, u.Summary())
	return c, nil
}

func (s *Server) evaluate(ctx context.Context, in, out *dynamic.Message) error {
	name, err := stringField(in, "function")
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	inputs, err := doublesField(in, "inputs")
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	c, err := s.function(name)
	if err != nil {
		return err
	}
	if len(inputs) != c.unit.NumIn {
		return status.Errorf(codes.InvalidArgument, "%s takes %d inputs, got %d", name, c.unit.NumIn, len(inputs))
	}

	m := c.machines.Get().(*vm.Machine)
	defer c.machines.Put(m)
	outputs := make([]float64, c.unit.NumOut)
	if err := vm.Execute(func() { m.Call(inputs, outputs) }); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	if err := setDoubles(out, "outputs", outputs); err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return nil
}

func (s *Server) emit(ctx context.Context, in, out *dynamic.Message) error {
	name, err := stringField(in, "function")
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	def, err := s.lib.Lookup(name)
	if err != nil {
		return status.Error(codes.NotFound, err.Error())
	}
	src, err := emitter.EmitWith(session.New(s.lib), def, emitter.OptionsFrom(s.cfg))
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return out.TrySetFieldByName("text", src)
}

func (s *Server) disassemble(ctx context.Context, in, out *dynamic.Message) error {
	name, err := stringField(in, "function")
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	c, err := s.function(name)
	if err != nil {
		return err
	}
	return out.TrySetFieldByName("text", vm.DisassembleAll(c.unit))
}
