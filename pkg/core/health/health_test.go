package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tempoerr "github.com/tempo-sim/tempo-go/pkg/core/errors"
	coregrpc "github.com/tempo-sim/tempo-go/pkg/core/grpc"
	"github.com/tempo-sim/tempo-go/pkg/tempo"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestNewChecker(t *testing.T) {
	checker := NewChecker("test-checker", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy, Message: "test passed"}
	})

	assert.Equal(t, "test-checker", checker.Name())
	result := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "test passed", result.Message)
}

func TestRegistry_RegisterAndCheck(t *testing.T) {
	registry := NewRegistry("tempoctl", "0.1.0")
	registry.RegisterFunc("server", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	registry.RegisterFunc("client", func(ctx context.Context) CheckResult {
		return CheckResult{Name: "client", Status: StatusHealthy}
	})

	report := registry.Check(context.Background())

	assert.Equal(t, "tempoctl", report.Component)
	assert.Equal(t, "0.1.0", report.Version)
	assert.True(t, report.Healthy())
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "client", report.Checks[0].Name, "sorted by name")
	assert.Equal(t, "server", report.Checks[1].Name, "name filled from the checker")
}

func TestRegistry_RegisterReplacesSameName(t *testing.T) {
	registry := NewRegistry("tempoctl", "0.1.0")
	registry.RegisterFunc("server", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})
	registry.RegisterFunc("server", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})

	report := registry.Check(context.Background())
	require.Len(t, report.Checks, 1)
	assert.True(t, report.Healthy())
}

func TestRegistry_OverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"unknown", []Status{StatusHealthy, StatusUnknown}, StatusUnknown},
		{"degraded beats unknown", []Status{StatusUnknown, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
		{"empty", nil, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry("tempoctl", "0.1.0")
			for i, s := range tt.statuses {
				registry.RegisterFunc(string(rune('a'+i)), func(ctx context.Context) CheckResult {
					return CheckResult{Status: s}
				})
			}
			assert.Equal(t, tt.want, registry.Check(context.Background()).Status)
		})
	}
}

func TestRegistry_ConcurrentChecks(t *testing.T) {
	registry := NewRegistry("tempoctl", "0.1.0")
	var counter atomic.Int32

	for i := 0; i < 5; i++ {
		registry.RegisterFunc("check"+string(rune('A'+i)), func(ctx context.Context) CheckResult {
			counter.Add(1)
			time.Sleep(10 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		})
	}

	start := time.Now()
	report := registry.Check(context.Background())

	assert.Equal(t, int32(5), counter.Load())
	assert.Less(t, time.Since(start), 100*time.Millisecond, "checks run concurrently")
	assert.Len(t, report.Checks, 5)
	for _, c := range report.Checks {
		assert.False(t, c.Timestamp.IsZero())
	}
}

func TestRegistry_CheckWithTimeout(t *testing.T) {
	registry := NewRegistry("tempoctl", "0.1.0")
	registry.RegisterFunc("slow", func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{Status: StatusUnhealthy, Message: ctx.Err().Error()}
	})

	start := time.Now()
	report := registry.CheckWithTimeout(context.Background(), 20*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Checks[0].Message)

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	report = registry.CheckWithTimeout(parent, time.Hour)
	assert.Equal(t, context.Canceled.Error(), report.Checks[0].Message)
}

func TestReport_String(t *testing.T) {
	report := &Report{
		Component: "tempoctl",
		Version:   "0.1.0",
		Status:    StatusDegraded,
		Checks:    []CheckResult{{Status: StatusHealthy}, {Status: StatusDegraded}},
	}
	assert.Equal(t, "tempoctl 0.1.0: degraded (1/2 checks passing)", report.String())
}

func startHealthServer(t *testing.T) *coregrpc.Server {
	t.Helper()
	cfg := coregrpc.DefaultServerConfig()
	cfg.Port = 0
	cfg.EnableReflection = false
	srv := coregrpc.NewServer(cfg)
	require.NoError(t, srv.StartAsync())
	t.Cleanup(srv.Stop)
	return srv
}

func contextSource(c *tempo.Context) ConnSource {
	return func(ctx context.Context) (grpc.ClientConnInterface, error) {
		return c.Acquire(ctx)
	}
}

func TestGRPCCheck(t *testing.T) {
	srv := startHealthServer(t)
	srv.Health().SetServingStatus("tempo.Paused", healthpb.HealthCheckResponse_NOT_SERVING)

	c := tempo.NewWithServer("127.0.0.1", uint16(srv.Port()))
	defer c.Close()
	source := contextSource(c)

	tests := []struct {
		service string
		want    Status
	}{
		{"", StatusHealthy},
		{"tempo.Paused", StatusUnhealthy},
		{"tempo.Missing", StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			checker := GRPCCheck("server", tt.service, source, time.Second)
			assert.Equal(t, "server", checker.Name())
			result := checker.Check(context.Background())
			assert.Equal(t, tt.want, result.Status, result.Message)
			assert.Equal(t, tt.service, result.Details["service"])
		})
	}

	missing := GRPCCheck("server", "tempo.Missing", source, time.Second).Check(context.Background())
	assert.Equal(t, "NotFound", missing.Details["code"])
}

func TestGRPCCheck_ConnectionFailure(t *testing.T) {
	source := func(ctx context.Context) (grpc.ClientConnInterface, error) {
		return nil, tempoerr.Connection("acquire", errors.New("refused"))
	}

	result := GRPCCheck("server", "", source, 0).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "connection", result.Details["kind"])
}

func TestConnectedCheck(t *testing.T) {
	var connected atomic.Bool
	checker := ConnectedCheck("handle", connected.Load)

	assert.Equal(t, StatusDegraded, checker.Check(context.Background()).Status)
	connected.Store(true)
	assert.Equal(t, StatusHealthy, checker.Check(context.Background()).Status)
}
