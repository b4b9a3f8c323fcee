package grpc

import (
	"context"
	"errors"
	"io"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tempo-sim/tempo-go/pkg/core/logging"
	"github.com/tempo-sim/tempo-go/pkg/core/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var interceptorLogger = logging.New("grpc")

// Context keys for request metadata
type contextKey string

const (
	RequestIDKey    contextKey = "request_id"
	RequestIDHeader string     = "x-request-id"
)

// ClientRequestIDInterceptor propagates the request ID to outgoing requests,
// generating one when the context carries none
func ClientRequestIDInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(outgoingWithRequestID(ctx), method, req, reply, cc, opts...)
	}
}

// ClientStreamRequestIDInterceptor is the streaming variant of ClientRequestIDInterceptor
func ClientStreamRequestIDInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(outgoingWithRequestID(ctx), desc, cc, method, opts...)
	}
}

func outgoingWithRequestID(ctx context.Context) context.Context {
	requestID := GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return metadata.AppendToOutgoingContext(ctx, RequestIDHeader, requestID)
}

// ClientLoggingInterceptor logs outgoing unary requests and counts them
func ClientLoggingInterceptor(collector metrics.Collector) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()

		err := invoker(ctx, method, req, reply, cc, opts...)

		statusCode := status.Code(err)
		collector.IncRPC(method, statusCode.String())
		interceptorLogger.Debug("gRPC client request",
			"method", method,
			"status", statusCode.String(),
			"duration", time.Since(start),
		)

		return err
	}
}

// ClientStreamLoggingInterceptor logs outgoing streams when they finish and
// counts received messages
func ClientStreamLoggingInterceptor(collector metrics.Collector) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		start := time.Now()

		stream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			statusCode := status.Code(err)
			collector.IncRPC(method, statusCode.String())
			interceptorLogger.Debug("gRPC client stream failed to open",
				"method", method,
				"status", statusCode.String(),
			)
			return nil, err
		}

		observed := &observedClientStream{
			ClientStream: stream,
			method:       method,
			start:        start,
			collector:    collector,
		}
		go observed.watch(ctx)
		return observed, nil
	}
}

// observedClientStream reports the terminal status of a client stream once
type observedClientStream struct {
	grpc.ClientStream
	method    string
	start     time.Time
	collector metrics.Collector
	received  atomic.Int64
	finished  atomic.Bool
}

func (s *observedClientStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		s.received.Add(1)
		s.collector.IncStreamMessage(s.method)
		return nil
	}
	statusCode := codes.OK
	if !errors.Is(err, io.EOF) {
		statusCode = status.Code(err)
	}
	s.finish(statusCode)
	return err
}

// watch records streams the caller abandons by ending ctx before a terminal
// RecvMsg. The stream context ends on every completion, so it bounds the
// goroutine.
func (s *observedClientStream) watch(ctx context.Context) {
	<-s.ClientStream.Context().Done()
	if err := ctx.Err(); err != nil {
		s.finish(status.FromContextError(err).Code())
	}
}

func (s *observedClientStream) finish(statusCode codes.Code) {
	if !s.finished.CompareAndSwap(false, true) {
		return
	}
	s.collector.IncRPC(s.method, statusCode.String())
	interceptorLogger.Debug("gRPC client stream finished",
		"method", s.method,
		"status", statusCode.String(),
		"messages", s.received.Load(),
		"duration", time.Since(s.start),
	)
}

// RecoveryInterceptor recovers from panics in unary handlers
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				interceptorLogger.Error("gRPC panic recovered", "panic", r, "stack", string(debug.Stack()))
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// StreamRecoveryInterceptor recovers from panics in streaming handlers
func StreamRecoveryInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				interceptorLogger.Error("gRPC stream panic recovered", "panic", r, "stack", string(debug.Stack()))
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

// LoggingInterceptor logs served unary requests
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		interceptorLogger.Info("gRPC request",
			"request_id", GetRequestID(ctx),
			"method", info.FullMethod,
			"status", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}

// StreamLoggingInterceptor logs served streams
func StreamLoggingInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()

		err := handler(srv, ss)

		interceptorLogger.Info("gRPC stream request",
			"request_id", GetRequestID(ss.Context()),
			"method", info.FullMethod,
			"status", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return err
	}
}

// GetRequestID extracts the request ID from the context value or, failing
// that, from incoming metadata
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(RequestIDHeader); len(values) > 0 {
		return values[0]
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
