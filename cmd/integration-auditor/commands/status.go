package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/catherinevee/integration-auditor/internal/config"
	"github.com/catherinevee/integration-auditor/internal/model"
	"github.com/catherinevee/integration-auditor/internal/safety"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the safety controller's current posture",
	Long: `status reports the circuit breaker state, consecutive failure count and
maintenance-window posture a fresh safety.Controller would start with
given the current environment-driven safety configuration. It does not
read any session's live state: each run constructs its own Controller.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.SafetyFromEnv(safety.DefaultConfig())
	ctrl := safety.NewController(cfg)
	st := ctrl.Status()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.SetBorder(false)
	table.SetColumnSeparator(" ")
	table.Append([]string{"Circuit state", circuitStateColor(st.CircuitState)})
	table.Append([]string{"Consecutive failures", fmt.Sprintf("%d", st.ConsecutiveFailures)})
	table.Append([]string{"In maintenance window", fmt.Sprintf("%v", st.InMaintenanceWindow)})
	table.Append([]string{"Max ops per integration", fmt.Sprintf("%d", cfg.MaxOpsPerIntegration)})
	table.Append([]string{"Max total ops", fmt.Sprintf("%d", cfg.MaxTotalOps)})
	table.Append([]string{"Max concurrent integrations", fmt.Sprintf("%d", cfg.MaxConcurrentIntegrations)})
	table.Append([]string{"Rate limit (rps)", fmt.Sprintf("%.1f", cfg.RateLimit.RequestsPerSecond)})
	table.Append([]string{"Allowlist enabled", fmt.Sprintf("%v", cfg.AllowlistEnabled)})
	table.Render()
	return nil
}

// circuitStateColor flags the breaker state the way the teacher's
// enhanced_discovery.go flags compliance issues: red for OPEN, yellow for
// HALF_OPEN, green for CLOSED.
func circuitStateColor(state model.CircuitState) string {
	switch state {
	case model.CircuitOpen:
		return color.RedString(string(state))
	case model.CircuitHalfOpen:
		return color.YellowString(string(state))
	default:
		return color.GreenString(string(state))
	}
}
