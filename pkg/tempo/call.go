package tempo

import (
	"context"

	tempoerr "github.com/tempo-sim/tempo-go/pkg/core/errors"
	"google.golang.org/grpc"
)

// UnaryFunc is the shape of a generated unary method bound to a connection,
// e.g. func(ctx, cc, req) { return pb.NewTimeServiceClient(cc).Play(ctx, req) }
type UnaryFunc[Req, Resp any] func(ctx context.Context, cc grpc.ClientConnInterface, req Req) (Resp, error)

// StreamFunc is the shape of a generated server-streaming method bound to a
// connection
type StreamFunc[Req, T any] func(ctx context.Context, cc grpc.ClientConnInterface, req Req) (grpc.ServerStreamingClient[T], error)

// Call acquires the connection of c and invokes fn on it. A failed call is
// returned as an RPC error; the cached connection is kept.
func Call[Req, Resp any](ctx context.Context, c *Context, fn UnaryFunc[Req, Resp], req Req) (Resp, error) {
	var zero Resp

	conn, err := c.Acquire(ctx)
	if err != nil {
		return zero, err
	}

	resp, err := fn(ctx, conn, req)
	if err != nil {
		return zero, tempoerr.RPC("call", err)
	}
	return resp, nil
}

// OpenStream acquires the connection of c, opens the stream on a private
// driver derived from ctx and wraps it in a SyncStream. The driver is
// released on every failure path.
func OpenStream[Req, T any](ctx context.Context, c *Context, open StreamFunc[Req, T], req Req) (*SyncStream[T], error) {
	conn, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	driver, cancel := context.WithCancel(ctx)
	stream, err := open(driver, conn, req)
	if err != nil {
		cancel()
		return nil, tempoerr.RPC("open_stream", err)
	}
	return NewSyncStream(driver, cancel, stream), nil
}
