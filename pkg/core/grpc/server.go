package grpc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/tempo-sim/tempo-go/pkg/core/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

var serverLogger = logging.New("grpc-server")

// ServerConfig holds configuration for the local mock server used by
// tempoctl serve and by tests
type ServerConfig struct {
	Host              string
	Port              int
	MaxMessageSize    int
	EnableReflection  bool
	EnableHealth      bool
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// DefaultServerConfig returns a default server configuration listening on
// the default Tempo port
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              10001,
		MaxMessageSize:    DefaultMaxMessageSize,
		EnableReflection:  true,
		EnableHealth:      true,
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
	}
}

// Server wraps a gRPC server with listener management and an optional
// health service
type Server struct {
	server   *grpc.Server
	health   *health.Server
	config   ServerConfig
	listener net.Listener
}

// NewServer creates a new gRPC server
func NewServer(cfg ServerConfig, opts ...grpc.ServerOption) *Server {
	serverOpts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveInterval,
			Timeout: cfg.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(),
			LoggingInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			StreamRecoveryInterceptor(),
			StreamLoggingInterceptor(),
		),
	}
	if cfg.MaxMessageSize > 0 {
		serverOpts = append(serverOpts,
			grpc.MaxRecvMsgSize(cfg.MaxMessageSize),
			grpc.MaxSendMsgSize(cfg.MaxMessageSize),
		)
	}
	serverOpts = append(serverOpts, opts...)

	server := grpc.NewServer(serverOpts...)

	s := &Server{server: server, config: cfg}
	if cfg.EnableHealth {
		s.health = health.NewServer()
		healthpb.RegisterHealthServer(server, s.health)
	}
	if cfg.EnableReflection {
		reflection.Register(server)
	}
	return s
}

// GRPCServer returns the underlying gRPC server for service registration
func (s *Server) GRPCServer() *grpc.Server {
	return s.server
}

// Health returns the health service, or nil when disabled
func (s *Server) Health() *health.Server {
	return s.health
}

func (s *Server) listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	return nil
}

// Start listens and serves until the server stops
func (s *Server) Start() error {
	if err := s.listen(); err != nil {
		return err
	}
	return s.server.Serve(s.listener)
}

// StartAsync listens and serves in a goroutine
func (s *Server) StartAsync() error {
	if err := s.listen(); err != nil {
		return err
	}

	go func() {
		if err := s.server.Serve(s.listener); err != nil {
			serverLogger.Error("gRPC server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() {
	if s.health != nil {
		s.health.Shutdown()
	}
	s.server.GracefulStop()
}

// StopWithTimeout stops gracefully, forcing the stop once ctx ends
func (s *Server) StopWithTimeout(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}

// Address returns the bound address, which differs from the configured one
// when Port is 0
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Port returns the bound port
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}
