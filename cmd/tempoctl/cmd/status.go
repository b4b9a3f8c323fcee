package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	coregrpc "github.com/tempo-sim/tempo-go/pkg/core/grpc"
	"github.com/tempo-sim/tempo-go/pkg/core/health"
	"github.com/tempo-sim/tempo-go/pkg/core/version"
	"google.golang.org/grpc"
)

var (
	statusJSON     bool
	statusServices []string
	statusTimeout  time.Duration
)

var (
	healthyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	degradedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	unhealthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the health of the Tempo server",
	Long: `Runs the client health checks against the configured server and
prints a report. Each --service adds a named health check.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the report as JSON")
	statusCmd.Flags().StringSliceVar(&statusServices, "service", nil, "additional health service names to check")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 5*time.Second, "timeout for all checks")
}

func runStatus(cmd *cobra.Command, args []string) error {
	source := func(ctx context.Context) (grpc.ClientConnInterface, error) {
		return client.Acquire(ctx)
	}

	// A failed connect is reported by the server check below
	connectCtx, cancelConnect := connectContext(cmd.Context())
	_, _ = client.Acquire(connectCtx)
	cancelConnect()

	registry := health.NewRegistry("tempoctl", version.Tempoctl)
	registry.Register(health.ConnectedCheck("connection", client.Connected))
	registry.RegisterFunc("transport", transportCheck)
	registry.Register(health.GRPCCheck("server", "", source, statusTimeout))
	for _, svc := range statusServices {
		registry.Register(health.GRPCCheck(svc, svc, source, statusTimeout))
	}

	report := registry.CheckWithTimeout(cmd.Context(), statusTimeout)

	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Tempo server %s\n", client.Endpoint())
		fmt.Fprintln(out, "===================")
		for _, c := range report.Checks {
			fmt.Fprintf(out, "  %s %-20s %s\n", statusIcon(c.Status), c.Name, c.Message)
		}
		fmt.Fprintf(out, "\n%s\n", report)
	}

	if !report.Healthy() {
		return fmt.Errorf("server is %s", report.Status)
	}
	return nil
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return healthyStyle.Render("[+]")
	case health.StatusDegraded:
		return degradedStyle.Render("[~]")
	default:
		return unhealthyStyle.Render("[-]")
	}
}

// transportCheck reports the channel state of the cached connection
func transportCheck(ctx context.Context) health.CheckResult {
	conn, err := client.Acquire(ctx)
	if err != nil {
		return health.CheckResult{Status: health.StatusUnhealthy, Message: err.Error()}
	}
	state := conn.GetState().String()
	if coregrpc.IsConnectionHealthy(conn) {
		return health.CheckResult{Status: health.StatusHealthy, Message: state}
	}
	return health.CheckResult{Status: health.StatusDegraded, Message: state}
}
