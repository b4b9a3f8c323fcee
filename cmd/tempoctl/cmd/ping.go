package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tempo-sim/tempo-go/pkg/tempo"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	pingLoop     bool
	pingInterval time.Duration
	pingService  string
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Checks that the Tempo server answers",
	Long: `Sends a gRPC health check through the process-wide client.

With --loop the check repeats every --interval until interrupted, reusing
the one cached connection.`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().BoolVar(&pingLoop, "loop", false, "repeat until interrupted")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", time.Second, "delay between pings with --loop")
	pingCmd.Flags().StringVar(&pingService, "service", "", "health service name (empty means the whole server)")
}

func healthCheck(ctx context.Context, cc grpc.ClientConnInterface, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	return healthpb.NewHealthClient(cc).Check(ctx, req)
}

func runPing(cmd *cobra.Command, args []string) error {
	if err := tempo.SetServer(appConfig.Server.Address, uint16(appConfig.Server.Port)); err != nil {
		return err
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for seq := 1; ; seq++ {
		start := time.Now()
		resp, err := ping(cmd.Context())
		if err != nil {
			printError("ping failed", err)
			if !pingLoop {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: seq=%d status=%s time=%s\n",
				tempo.Global().Endpoint(), seq, resp.GetStatus(), time.Since(start).Round(time.Microsecond))
		}

		if !pingLoop {
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ping connects within connect_timeout, then checks health through the
// process-wide Context
func ping(ctx context.Context) (*healthpb.HealthCheckResponse, error) {
	connectCtx, cancel := connectContext(ctx)
	defer cancel()
	if _, err := tempo.Handle(connectCtx); err != nil {
		return nil, err
	}
	return tempo.CallSync(healthCheck, &healthpb.HealthCheckRequest{Service: pingService})
}
