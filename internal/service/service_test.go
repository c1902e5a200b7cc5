package service

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/funvibe/numfn/internal/config"
	"github.com/funvibe/numfn/internal/document"
)

const doc = `
functions:
  - name: f
    params: [x]
    return: single
    body:
      - if: {"<": [x, 0]}
        then: [{return: [{neg: x}]}]
        else: [{return: [x]}]

  - name: hyp
    params: [a, b]
    return: single
    body:
      - return: {sqrt: [{"+": [{call: [sq, a]}, {call: [sq, b]}]}]}

  - name: sq
    params: [x]
    return: single
    body:
      - return: {"*": [x, x]}

  - name: broken
    params: [x]
    body:
      - set: [x, {call: [nowhere, x]}]
      - return: x
`

func start(t *testing.T, cfg *config.Config) *Client {
	t.Helper()
	lib, err := document.Parse([]byte(doc), "svc.nf.yaml")
	require.NoError(t, err)
	srv, err := New(lib, cfg, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestSchema(t *testing.T) {
	sd, err := Schema()
	require.NoError(t, err)
	assert.Equal(t, ServiceName, sd.GetFullyQualifiedName())
	assert.Len(t, sd.GetMethods(), 3)
	assert.Equal(t, "/numfn.v1.Evaluator/Evaluate", FullMethod(MethodEvaluate))
}

func TestEvaluate(t *testing.T) {
	c := start(t, nil)
	ctx := context.Background()

	out, err := c.Evaluate(ctx, "f", []float64{-2.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, out)

	out, err = c.Evaluate(ctx, "hyp", []float64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, out)
}

func TestEmitAndDisassemble(t *testing.T) {
	c := start(t, nil)
	ctx := context.Background()

	src, err := c.Emit(ctx, "hyp")
	require.NoError(t, err)
	assert.Contains(t, src, "int hyp(double *numfn_ret, double *numfn_in)")
	assert.Contains(t, src, "NUMFN_Subfunction_sq")

	listing, err := c.Disassemble(ctx, "hyp")
	require.NoError(t, err)
	assert.Contains(t, listing, "function hyp, 2 Parameters")
	assert.Contains(t, listing, "function sq, 1 Parameters")
	assert.Contains(t, listing, "CALL")
}

func TestErrors(t *testing.T) {
	c := start(t, nil)
	ctx := context.Background()

	_, err := c.Evaluate(ctx, "missing", nil)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Evaluate(ctx, "f", []float64{1, 2})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "f takes 1 inputs, got 2")

	_, err = c.Evaluate(ctx, "broken", []float64{1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.True(t, strings.HasPrefix(status.Convert(err).Message(), "C004"))

	_, err = c.Emit(ctx, "broken")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStackCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.StackCapacity = 1
	c := start(t, cfg)

	_, err := c.Evaluate(context.Background(), "hyp", []float64{3, 4})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestConcurrentEvaluate(t *testing.T) {
	c := start(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := float64(3*i), float64(4*i)
			out, err := c.Evaluate(ctx, "hyp", []float64{a, b})
			if err != nil {
				errs <- err
				return
			}
			if out[0] != float64(5*i) {
				errs <- status.Errorf(codes.Unknown, "hyp(%v, %v) = %v", a, b, out[0])
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
