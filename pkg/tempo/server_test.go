package tempo

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	coregrpc "github.com/tempo-sim/tempo-go/pkg/core/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The frames service streams back a comma separated script sent by the
// client: a plain item is sent as a message, "!msg" ends the stream with
// UNAVAILABLE, and "~" blocks until the client goes away.
type framesService interface {
	stream(script string, out grpc.ServerStream) error
}

type framesServer struct{}

func (framesServer) stream(script string, out grpc.ServerStream) error {
	if script == "" {
		return nil
	}
	for _, item := range strings.Split(script, ",") {
		switch {
		case item == "~":
			<-out.Context().Done()
			return status.FromContextError(out.Context().Err()).Err()
		case strings.HasPrefix(item, "!"):
			return status.Error(codes.Unavailable, item[1:])
		default:
			if err := out.SendMsg(wrapperspb.String(item)); err != nil {
				return err
			}
		}
	}
	return nil
}

var framesServiceDesc = grpc.ServiceDesc{
	ServiceName: "tempo.test.Frames",
	HandlerType: (*framesService)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Stream",
		Handler:       framesStreamHandler,
		ServerStreams: true,
	}},
	Metadata: "frames_test.proto",
}

func framesStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(framesService).stream(req.GetValue(), stream)
}

var framesStreamDesc = &grpc.StreamDesc{StreamName: "Stream", ServerStreams: true}

// openFrames is written the way generated client code opens a server stream.
func openFrames(ctx context.Context, cc grpc.ClientConnInterface, script string) (grpc.ServerStreamingClient[wrapperspb.StringValue], error) {
	stream, err := cc.NewStream(ctx, framesStreamDesc, "/tempo.test.Frames/Stream")
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, wrapperspb.StringValue]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(wrapperspb.String(script)); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// startServer runs a loopback server with health and frames services.
func startServer(t *testing.T) *coregrpc.Server {
	t.Helper()
	return startServerOnPort(t, 0)
}

func startServerOnPort(t *testing.T, port int) *coregrpc.Server {
	t.Helper()
	cfg := coregrpc.DefaultServerConfig()
	cfg.Port = port
	cfg.EnableReflection = false
	srv := coregrpc.NewServer(cfg)
	srv.GRPCServer().RegisterService(&framesServiceDesc, framesServer{})
	require.NoError(t, srv.StartAsync())
	t.Cleanup(srv.Stop)
	return srv
}

func serverPort(srv *coregrpc.Server) uint16 {
	return uint16(srv.Port())
}

func unusedPort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return uint16(port)
}

// dialRecorder counts physical connections and remembers their targets.
type dialRecorder struct {
	count atomic.Int32
	mu    sync.Mutex
	addrs []string
}

func (r *dialRecorder) option() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		r.count.Add(1)
		r.mu.Lock()
		r.addrs = append(r.addrs, addr)
		r.mu.Unlock()
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	})
}

func (r *dialRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.addrs) == 0 {
		return ""
	}
	return r.addrs[len(r.addrs)-1]
}

// gatedDialer holds the first dial until release is closed.
type gatedDialer struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedDialer) option(rec *dialRecorder) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		rec.count.Add(1)
		g.once.Do(func() {
			close(g.entered)
			select {
			case <-g.release:
			case <-ctx.Done():
			}
		})
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	})
}

// fakeStream feeds Recv from a function.
type fakeStream[T any] struct {
	grpc.ClientStream
	recv func() (*T, error)
}

func (f *fakeStream[T]) Recv() (*T, error) {
	return f.recv()
}
