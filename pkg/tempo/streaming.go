package tempo

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync/atomic"

	tempoerr "github.com/tempo-sim/tempo-go/pkg/core/errors"
	"google.golang.org/grpc"
)

// SyncStream pulls the messages of one server-streaming response with
// blocking calls.
//
// It owns a private driver context and the stream running on it. Both are
// released together by Close, by the end of the stream, or by the first
// error. A SyncStream must not be copied, and Pull must not be called from
// two goroutines at once; overlapping calls panic.
//
// An RPC error ends the stream: the failing Pull returns the error and every
// later Pull reports the end of the stream, as gRPC does not resume a stream
// after a non-OK status.
type SyncStream[T any] struct {
	driver context.Context
	cancel context.CancelFunc
	stream grpc.ServerStreamingClient[T]

	busy atomic.Bool
	done bool
}

// NewSyncStream takes ownership of driver, its cancel function and stream,
// which must be running on driver. Neither may be used elsewhere afterwards.
func NewSyncStream[T any](driver context.Context, cancel context.CancelFunc, stream grpc.ServerStreamingClient[T]) *SyncStream[T] {
	return &SyncStream[T]{
		driver: driver,
		cancel: cancel,
		stream: stream,
	}
}

// Pull blocks until the next message arrives and returns it with ok set.
// At the end of the stream it returns ok == false and a nil error, now and
// on every later call. A non-OK status is returned once as an RPC error.
func (s *SyncStream[T]) Pull() (msg *T, ok bool, err error) {
	if !s.busy.CompareAndSwap(false, true) {
		panic("tempo: concurrent Pull on SyncStream")
	}
	defer s.busy.Store(false)

	if s.done {
		return nil, false, nil
	}

	msg, err = s.stream.Recv()
	if err == nil {
		return msg, true, nil
	}

	s.release()
	if errors.Is(err, io.EOF) {
		return nil, false, nil
	}
	return nil, false, tempoerr.RPC("pull", err)
}

// All yields messages until the stream ends. An RPC error is yielded once as
// the last pair. Breaking out of the loop leaves the stream open; Close it.
func (s *SyncStream[T]) All() iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		for {
			msg, ok, err := s.Pull()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Context returns the driver context the stream runs on
func (s *SyncStream[T]) Context() context.Context {
	return s.driver
}

// Done reports whether the stream has ended
func (s *SyncStream[T]) Done() bool {
	return s.done
}

// Close cancels the driver, which closes the stream on the transport. Later
// pulls report the end of the stream. Close is idempotent.
func (s *SyncStream[T]) Close() {
	s.release()
}

func (s *SyncStream[T]) release() {
	s.done = true
	s.cancel()
}
