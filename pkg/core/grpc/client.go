package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tempo-sim/tempo-go/pkg/core/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// DefaultMaxMessageSize bounds single messages and sizes the flow-control
// windows. Simulation payloads such as camera frames approach 1GB.
const DefaultMaxMessageSize = 1_000_000_000

// ClientConfig holds gRPC client configuration
type ClientConfig struct {
	Target string

	// MaxMessageSize caps receive and send message sizes
	MaxMessageSize int

	// InitialWindowSize and InitialConnWindowSize size the per-stream and
	// per-connection receive windows
	InitialWindowSize     int32
	InitialConnWindowSize int32

	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration

	// Metrics receives RPC counters from the client interceptors
	Metrics metrics.Collector
}

// DefaultClientConfig returns a default client configuration
func DefaultClientConfig(target string) ClientConfig {
	return ClientConfig{
		Target:                target,
		MaxMessageSize:        DefaultMaxMessageSize,
		InitialWindowSize:     DefaultMaxMessageSize,
		InitialConnWindowSize: DefaultMaxMessageSize,
		KeepaliveInterval:     30 * time.Second,
		KeepaliveTimeout:      10 * time.Second,
	}
}

// DialOptions returns the dial options derived from cfg
func DialOptions(cfg ClientConfig) []grpc.DialOption {
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.Noop()
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(
			ClientRequestIDInterceptor(),
			ClientLoggingInterceptor(collector),
		),
		grpc.WithChainStreamInterceptor(
			ClientStreamRequestIDInterceptor(),
			ClientStreamLoggingInterceptor(collector),
		),
	}
	if cfg.MaxMessageSize > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
			grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
		))
	}
	if cfg.InitialWindowSize > 0 {
		opts = append(opts, grpc.WithInitialWindowSize(cfg.InitialWindowSize))
	}
	if cfg.InitialConnWindowSize > 0 {
		opts = append(opts, grpc.WithInitialConnWindowSize(cfg.InitialConnWindowSize))
	}
	if cfg.KeepaliveInterval > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveInterval,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}
	return opts
}

// Dial creates a client connection and drives it until it is ready. It
// fails as soon as the transport reports a failed attempt, or when ctx ends.
// The connection is closed on every failure path.
func Dial(ctx context.Context, cfg ClientConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := append(DialOptions(cfg), opts...)

	conn, err := grpc.NewClient(cfg.Target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", cfg.Target, err)
	}

	if err := WaitForReady(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Target, err)
	}
	return conn, nil
}

// WaitForReady starts connecting conn and blocks until it is Ready.
// TransientFailure and Shutdown are reported as errors.
func WaitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure:
			return fmt.Errorf("transport in %s", state)
		case connectivity.Shutdown:
			return errors.New("connection shut down")
		case connectivity.Idle:
			conn.Connect()
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// IsConnectionHealthy checks if the connection is in a usable state
func IsConnectionHealthy(conn *grpc.ClientConn) bool {
	state := conn.GetState()
	return state == connectivity.Ready || state == connectivity.Idle
}
