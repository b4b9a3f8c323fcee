package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tempo-sim/tempo-go/pkg/core/config"
	coregrpc "github.com/tempo-sim/tempo-go/pkg/core/grpc"
	"github.com/tempo-sim/tempo-go/pkg/core/logging"
	"github.com/tempo-sim/tempo-go/pkg/core/metrics"
	"github.com/tempo-sim/tempo-go/pkg/tempo"
)

var (
	cfgFile string
	address string
	port    uint16
	verbose bool

	appConfig  *config.Config
	client     *tempo.Context
	metricsSrv *http.Server
)

var collector = metrics.Noop()

var log = logging.New("tempoctl")

var rootCmd = &cobra.Command{
	Use:   "tempoctl",
	Short: "Command line client for a Tempo simulation server",
	Long: `tempoctl talks to a running Tempo server over gRPC.

The server endpoint comes from --address/--port, then the config file
(--config or $TEMPO_CONFIG), then the defaults localhost:10001.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

// Execute runs the root command until ctx ends
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $TEMPO_CONFIG or ./tempo.toml)")
	rootCmd.PersistentFlags().StringVar(&address, "address", "", "Tempo server address")
	rootCmd.PersistentFlags().Uint16Var(&port, "port", 0, "Tempo server port")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func setup(cmd *cobra.Command, args []string) error {
	collector = metrics.Noop()

	var err error
	if cfgFile != "" {
		appConfig, err = config.Load(cfgFile)
	} else {
		appConfig, err = config.LoadFromEnv()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("address") {
		appConfig.Server.Address = address
	}
	if cmd.Flags().Changed("port") {
		appConfig.Server.Port = int(port)
	}
	if verbose {
		appConfig.Log.Level = "debug"
	}

	logCfg := logging.DefaultLoggerConfig("tempoctl")
	logCfg.Level = appConfig.Log.Level
	logCfg.Format = appConfig.Log.Format
	if err := logging.Setup(logCfg); err != nil {
		return err
	}

	if appConfig.Metrics.Enabled {
		prom, err := metrics.NewPrometheusCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		collector = prom
		startMetricsServer(appConfig.Metrics.Listen)
	}

	opts := []tempo.Option{
		tempo.WithClientConfig(clientConfig(appConfig)),
		tempo.WithMetrics(collector),
		tempo.WithLogger(log),
	}
	client = tempo.NewWithServer(appConfig.Server.Address, uint16(appConfig.Server.Port), opts...)
	// ping goes through the process-wide Context; it gets the same settings
	tempo.Global().ApplyOptions(opts...)
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	var errs []error
	if client != nil {
		errs = append(errs, client.Close())
	}
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errs = append(errs, metricsSrv.Shutdown(ctx))
		metricsSrv = nil
	}
	return errors.Join(errs...)
}

func clientConfig(cfg *config.Config) coregrpc.ClientConfig {
	cc := coregrpc.DefaultClientConfig("")
	cc.MaxMessageSize = cfg.Client.MaxMessageSize
	cc.KeepaliveInterval = cfg.Client.KeepaliveInterval.Duration
	cc.KeepaliveTimeout = cfg.Client.KeepaliveTimeout.Duration
	cc.Metrics = collector
	return cc
}

func startMetricsServer(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	metricsSrv = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "listen", listen, "error", err)
		}
	}()
	log.Info("metrics endpoint started", "listen", listen)
}

// connectContext bounds connection establishment by connect_timeout when set
func connectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := appConfig.Client.ConnectTimeout.Duration; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
}
