package service

import (
	"context"
	"fmt"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a remote Evaluator.
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// Dial connects to the Evaluator at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", target, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClient wraps an existing connection. Close leaves conn open.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, name string, fill func(*dynamic.Message) error) (*dynamic.Message, error) {
	md, err := method(name)
	if err != nil {
		return nil, err
	}
	req := dynamic.NewMessage(md.GetInputType())
	if err := fill(req); err != nil {
		return nil, err
	}
	resp := dynamic.NewMessage(md.GetOutputType())
	if err := c.conn.Invoke(ctx, FullMethod(name), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Evaluate runs function on inputs remotely.
func (c *Client) Evaluate(ctx context.Context, function string, inputs []float64) ([]float64, error) {
	resp, err := c.invoke(ctx, MethodEvaluate, func(req *dynamic.Message) error {
		if err := req.TrySetFieldByName("function", function); err != nil {
			return err
		}
		return setDoubles(req, "inputs", inputs)
	})
	if err != nil {
		return nil, err
	}
	return doublesField(resp, "outputs")
}

// Emit returns the C source of function.
func (c *Client) Emit(ctx context.Context, function string) (string, error) {
	return c.text(ctx, MethodEmit, function)
}

// Disassemble returns the bytecode listing of function and its callees.
func (c *Client) Disassemble(ctx context.Context, function string) (string, error) {
	return c.text(ctx, MethodDisassemble, function)
}

func (c *Client) text(ctx context.Context, name, function string) (string, error) {
	resp, err := c.invoke(ctx, name, func(req *dynamic.Message) error {
		return req.TrySetFieldByName("function", function)
	})
	if err != nil {
		return "", err
	}
	return stringField(resp, "text")
}
