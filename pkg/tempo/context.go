package tempo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"sync"

	tempoerr "github.com/tempo-sim/tempo-go/pkg/core/errors"
	coregrpc "github.com/tempo-sim/tempo-go/pkg/core/grpc"
	"github.com/tempo-sim/tempo-go/pkg/core/logging"
	"github.com/tempo-sim/tempo-go/pkg/core/metrics"
	"google.golang.org/grpc"
)

var contextLogger = logging.New("tempo")

const (
	// DefaultAddress is the server address used until Configure is called
	DefaultAddress = "localhost"
	// DefaultPort is the server port used until Configure is called
	DefaultPort uint16 = 10001
	// EndpointScheme is the plaintext scheme of the endpoint string
	EndpointScheme = "http"
)

// ErrClosed is the cause reported by Acquire after Close
var ErrClosed = errors.New("tempo context closed")

// Context manages the connection to one Tempo server.
//
// The cached connection always belongs to the current (address, port):
// Configure clears it. Connections handed out before a Configure stay usable
// by their holders; the Context closes them only in Close.
type Context struct {
	mu      sync.RWMutex
	address string
	port    uint16
	conn    *grpc.ClientConn
	stubs   map[reflect.Type]any
	retired []*grpc.ClientConn
	closed  bool

	// dialing is closed when the in-flight dial for the current
	// configuration finishes; generation counts configurations
	dialing    chan struct{}
	generation uint64

	client   coregrpc.ClientConfig
	dialOpts []grpc.DialOption
	metrics  metrics.Collector
	logger   *logging.Logger
}

// Option configures a Context
type Option func(*Context)

// WithClientConfig overrides message and window sizing and keepalive. The
// Target field is ignored.
func WithClientConfig(cfg coregrpc.ClientConfig) Option {
	return func(c *Context) {
		c.client = cfg
	}
}

// WithDialOptions appends raw dial options to every connection attempt
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Context) {
		c.dialOpts = append(c.dialOpts, opts...)
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(collector metrics.Collector) Option {
	return func(c *Context) {
		if collector != nil {
			c.metrics = collector
		}
	}
}

// WithLogger sets the logger for connection lifecycle events
func WithLogger(logger *logging.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Context targeting DefaultAddress:DefaultPort
func New(opts ...Option) *Context {
	return NewWithServer(DefaultAddress, DefaultPort, opts...)
}

// NewWithServer creates a Context targeting address:port. It does not connect.
func NewWithServer(address string, port uint16, opts ...Option) *Context {
	c := &Context{
		address: address,
		port:    port,
		client:  coregrpc.DefaultClientConfig(""),
		metrics: metrics.Noop(),
		logger:  contextLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ApplyOptions changes client settings after construction. Like Configure
// it drops the cached connection, so the next Acquire dials with the new
// settings.
func (c *Context) ApplyOptions(opts ...Option) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, opt := range opts {
		opt(c)
	}
	c.resetLocked()
}

// resetLocked retires the cached connection and detaches any in-flight dial
// from the cache. c.mu must be held for writing.
func (c *Context) resetLocked() {
	if c.conn != nil {
		c.retired = append(c.retired, c.conn)
	}
	c.conn = nil
	c.stubs = nil
	c.dialing = nil
	c.generation++
}

// Configure replaces the target endpoint and drops the cached connection.
// It never connects.
func (c *Context) Configure(address string, port uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	c.address = address
	c.port = port

	c.logger.Info("Tempo server configured", "endpoint", endpoint(address, port))
}

// Acquire returns the cached connection, dialing one first if none is
// cached. Concurrent callers share a single dial and wait for it only as long
// as their own ctx allows. A failed dial leaves the cache empty so the next
// call tries again.
func (c *Context) Acquire(ctx context.Context) (*grpc.ClientConn, error) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			c.metrics.IncAcquire(metrics.CacheHit)
			return conn, nil
		}

		c.mu.Lock()
		// Another caller may have connected while we waited for the lock
		if c.conn != nil {
			conn := c.conn
			c.mu.Unlock()
			c.metrics.IncAcquire(metrics.CacheHit)
			return conn, nil
		}
		if c.closed {
			c.mu.Unlock()
			return nil, tempoerr.Connection("acquire", ErrClosed)
		}
		if c.address == "" {
			c.mu.Unlock()
			return nil, tempoerr.Connection("acquire", errors.New("empty server address"))
		}
		if err := ctx.Err(); err != nil {
			c.mu.Unlock()
			return nil, tempoerr.Connection("acquire", err)
		}

		if wait := c.dialing; wait != nil {
			c.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, tempoerr.Connection("acquire", ctx.Err())
			}
		}

		return c.dialLocked(ctx)
	}
}

// dialLocked marks a dial in flight, releases c.mu while dialing and caches
// the result unless the Context was reconfigured or closed meanwhile. c.mu
// must be held for writing on entry; it is released on return.
func (c *Context) dialLocked(ctx context.Context) (*grpc.ClientConn, error) {
	done := make(chan struct{})
	c.dialing = done
	generation := c.generation
	ep := endpoint(c.address, c.port)
	cfg := c.client
	cfg.Target = target(c.address, c.port)
	cfg.Metrics = c.metrics
	dialOpts := c.dialOpts
	logger := c.logger
	c.mu.Unlock()

	c.metrics.IncAcquire(metrics.CacheMiss)
	conn, err := coregrpc.Dial(ctx, cfg, dialOpts...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialing == done {
		c.dialing = nil
	}
	close(done)

	if err != nil {
		c.metrics.IncConnectAttempt(metrics.ResultFailure)
		logger.Warn("Tempo connection failed", "endpoint", ep, "error", err.Error())
		return nil, tempoerr.Connection("acquire", err)
	}
	c.metrics.IncConnectAttempt(metrics.ResultSuccess)

	switch {
	case c.closed:
		conn.Close()
		return nil, tempoerr.Connection("acquire", ErrClosed)
	case c.generation != generation:
		// Reconfigured while dialing: the caller asked before the change and
		// may use the handle, but it must not become the cached one
		c.retired = append(c.retired, conn)
		logger.Debug("Tempo connection superseded by reconfiguration", "endpoint", ep)
		return conn, nil
	}

	logger.Info("Tempo connection established", "endpoint", ep)
	c.conn = conn
	return conn, nil
}

// Address returns the configured server address
func (c *Context) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.address
}

// Port returns the configured server port
func (c *Context) Port() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}

// Endpoint returns the endpoint string, e.g. http://localhost:10001
func (c *Context) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return endpoint(c.address, c.port)
}

// Target returns the dial target, e.g. localhost:10001
func (c *Context) Target() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return target(c.address, c.port)
}

// Connected reports whether a connection is cached
func (c *Context) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Close closes the cached connection and every connection retired by
// Configure. Acquire fails afterwards. The process-wide Context is never
// closed.
func (c *Context) Close() error {
	c.mu.Lock()
	conns := c.retired
	if c.conn != nil {
		conns = append(conns, c.conn)
	}
	c.conn = nil
	c.stubs = nil
	c.retired = nil
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection to %s: %w", conn.Target(), err))
		}
	}
	return errors.Join(errs...)
}

// Stub returns a client built by newClient on the current connection. The
// client is cached per client type until the next Configure.
func Stub[T any](ctx context.Context, c *Context, newClient func(grpc.ClientConnInterface) T) (T, error) {
	conn, err := c.Acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	key := reflect.TypeFor[T]()

	c.mu.RLock()
	stub, ok := c.stubs[key]
	current := c.conn == conn
	c.mu.RUnlock()
	if ok && current {
		return stub.(T), nil
	}

	client := newClient(conn)
	if !current {
		// Reconfigured since Acquire; the caller still gets a working client
		return client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return client, nil
	}
	if existing, ok := c.stubs[key]; ok {
		return existing.(T), nil
	}
	if c.stubs == nil {
		c.stubs = make(map[reflect.Type]any)
	}
	c.stubs[key] = client
	return client, nil
}

func target(address string, port uint16) string {
	return net.JoinHostPort(address, strconv.Itoa(int(port)))
}

func endpoint(address string, port uint16) string {
	return EndpointScheme + "://" + target(address, port)
}
