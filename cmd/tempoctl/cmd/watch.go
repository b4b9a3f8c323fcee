package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	tempoerr "github.com/tempo-sim/tempo-go/pkg/core/errors"
	"github.com/tempo-sim/tempo-go/pkg/tempo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	watchService string
	watchCount   int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follows the server's serving status",
	Long: `Opens the gRPC health Watch stream and prints every status change
until the stream ends, --count updates arrived, or the command is
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchService, "service", "", "health service name (empty means the whole server)")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "stop after this many updates (0 means no limit)")
}

func healthWatch(ctx context.Context, cc grpc.ClientConnInterface, req *healthpb.HealthCheckRequest) (grpc.ServerStreamingClient[healthpb.HealthCheckResponse], error) {
	return healthpb.NewHealthClient(cc).Watch(ctx, req)
}

func runWatch(cmd *cobra.Command, args []string) error {
	connectCtx, cancel := connectContext(cmd.Context())
	_, err := client.Acquire(connectCtx)
	cancel()
	if err != nil {
		printError("connect failed", err)
		return err
	}

	stream, err := tempo.OpenStream(cmd.Context(), client, healthWatch, &healthpb.HealthCheckRequest{Service: watchService})
	if err != nil {
		printError("watch failed", err)
		return err
	}
	defer stream.Close()

	seen := 0
	for msg, err := range stream.All() {
		if err != nil {
			if tempoerr.StatusCode(err) == codes.Canceled {
				return nil
			}
			printError("stream ended", err)
			return err
		}
		seen++
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", client.Endpoint(), msg.GetStatus())
		if watchCount > 0 && seen >= watchCount {
			return nil
		}
	}
	log.Debug("watch stream closed by server", "updates", seen)
	return nil
}
