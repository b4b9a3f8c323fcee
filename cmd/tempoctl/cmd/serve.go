package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	coregrpc "github.com/tempo-sim/tempo-go/pkg/core/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var (
	serveHost     string
	serveServices []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs a local stand-in server",
	Long: `Starts a gRPC server exposing the health and reflection services on
the configured port, so the client commands can be tried without a
running simulator. Each --service is reported as SERVING.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "interface to listen on")
	serveCmd.Flags().StringSliceVar(&serveServices, "service", nil, "service names to report as serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := coregrpc.DefaultServerConfig()
	cfg.Host = serveHost
	cfg.Port = appConfig.Server.Port
	cfg.MaxMessageSize = appConfig.Client.MaxMessageSize

	srv := coregrpc.NewServer(cfg)
	for _, svc := range serveServices {
		srv.Health().SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}

	if err := srv.StartAsync(); err != nil {
		printError("failed to start server", err)
		return err
	}
	log.Info("server started", "address", srv.Address(), "services", serveServices)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s, press Ctrl+C to stop\n", srv.Address())

	<-cmd.Context().Done()

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.StopWithTimeout(ctx)
	return nil
}
