package health

import (
	"context"
	"time"

	tempoerr "github.com/tempo-sim/tempo-go/pkg/core/errors"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ConnSource yields the channel a check runs against. tempo.Context.Acquire
// fits once wrapped.
type ConnSource func(ctx context.Context) (grpc.ClientConnInterface, error)

// GRPCCheck queries the standard gRPC health service for service ("" means
// the whole server). A connection failure is unhealthy, NOT_SERVING is
// unhealthy, and an unknown service state is degraded.
func GRPCCheck(name, service string, source ConnSource, timeout time.Duration) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		result := CheckResult{
			Name:    name,
			Details: map[string]any{"service": service},
		}

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		conn, err := source(ctx)
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			result.Details["kind"] = tempoerr.KindOf(err).String()
			return result
		}

		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			result.Details["code"] = tempoerr.StatusCode(err).String()
			return result
		}

		result.Details["serving"] = resp.GetStatus().String()
		switch resp.GetStatus() {
		case healthpb.HealthCheckResponse_SERVING:
			result.Status = StatusHealthy
			result.Message = "serving"
		case healthpb.HealthCheckResponse_NOT_SERVING:
			result.Status = StatusUnhealthy
			result.Message = "not serving"
		default:
			result.Status = StatusDegraded
			result.Message = "serving status unknown"
		}
		return result
	})
}

// ConnectedCheck reports whether a cached connection exists. An idle client
// is degraded rather than unhealthy since the next call connects lazily.
func ConnectedCheck(name string, connected func() bool) Checker {
	return NewChecker(name, func(ctx context.Context) CheckResult {
		if connected() {
			return CheckResult{Name: name, Status: StatusHealthy, Message: "connected"}
		}
		return CheckResult{Name: name, Status: StatusDegraded, Message: "no cached connection"}
	})
}
