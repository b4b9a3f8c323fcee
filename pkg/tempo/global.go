package tempo

import (
	"context"
	"fmt"
	"sync"

	tempoerr "github.com/tempo-sim/tempo-go/pkg/core/errors"
	"google.golang.org/grpc"
)

var (
	globalContext *Context
	globalOnce    sync.Once
)

// Global returns the process-wide Context, creating it with defaults on
// first use. It lives for the rest of the process and is never closed.
func Global() *Context {
	globalOnce.Do(func() {
		globalContext = New()
	})
	return globalContext
}

// SetServerContext configures the process-wide Context from a call site
// that already carries a context. It fails only if ctx has ended.
func SetServerContext(ctx context.Context, address string, port uint16) error {
	if err := ctx.Err(); err != nil {
		return tempoerr.Runtime("set_server", err)
	}
	Global().Configure(address, port)
	return nil
}

// SetServer configures the process-wide Context from a plain call site. It
// runs the configuration on a private driver that is released before it
// returns. Goroutines are not bound to a driver, so SetServer is safe to
// call from any goroutine, including ones already serving a request.
func SetServer(address string, port uint16) error {
	return runBlocking("set_server", func(ctx context.Context) error {
		return SetServerContext(ctx, address, port)
	})
}

// Handle acquires the connection of the process-wide Context
func Handle(ctx context.Context) (*grpc.ClientConn, error) {
	return Global().Acquire(ctx)
}

// CallSync invokes a unary method through the process-wide Context on a
// private driver
func CallSync[Req, Resp any](fn UnaryFunc[Req, Resp], req Req) (Resp, error) {
	var resp Resp
	err := runBlocking("call", func(ctx context.Context) error {
		var err error
		resp, err = Call(ctx, Global(), fn, req)
		return err
	})
	return resp, err
}

// StreamSync opens a server stream through the process-wide Context. The
// returned SyncStream owns its own driver, independent of any caller context.
func StreamSync[Req, T any](open StreamFunc[Req, T], req Req) (*SyncStream[T], error) {
	return OpenStream(context.Background(), Global(), open, req)
}

// runBlocking drives fn to completion on a dedicated goroutine with its own
// cancelable context and waits for it. A panic in fn is reported as a
// Runtime error.
func runBlocking(op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- tempoerr.Runtime(op, fmt.Errorf("driver panicked: %v", r))
			}
		}()
		done <- fn(ctx)
	}()
	return <-done
}
