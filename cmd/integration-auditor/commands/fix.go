package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/catherinevee/integration-auditor/internal/orchestrator"
)

var fixArgs fixFlags

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Detect and remediate corrupted integration settings",
	Long: `fix runs the full detect -> remediate -> plan -> execute pipeline over
one tier of input. Without --apply it defaults to --dry-run: actions are
planned and recorded in the audit trail but neither staged nor executed,
and the safety preflight check is
skipped (spec.md §7(e)).`,
	RunE: runFix,
}

func init() {
	rootCmd.AddCommand(fixCmd)

	fixCmd.Flags().StringVar(&fixArgs.product, "product", "", "product name (selects config/products/<product> overrides)")
	fixCmd.Flags().StringVar(&fixArgs.edition, "edition", "", "only process integrations on this license edition")
	fixCmd.Flags().StringVar(&fixArgs.version, "version", "", "product version (selects the versioned override file)")
	fixCmd.Flags().StringVar(&fixArgs.tier, "tier", "", "input subdirectory under --input-dir")
	fixCmd.Flags().StringSliceVar(&fixArgs.allowlist, "allowlist", nil, "integration ids allowed to be modified")
	fixCmd.Flags().StringSliceVar(&fixArgs.allowlistAccounts, "allowlist-accounts", nil, "account/email addresses allowed to be modified")
	fixCmd.Flags().IntVar(&fixArgs.maxOpsPerIntegration, "max-ops-per-integration", 0, "cap on actions per integration (0 = safety default)")
	fixCmd.Flags().IntVar(&fixArgs.maxConcurrent, "max-concurrent", 0, "worker pool size (0 = safety default)")
	fixCmd.Flags().Float64Var(&fixArgs.rateLimit, "rate-limit", 0, "executor calls per second (0 = safety default)")
	fixCmd.Flags().IntVar(&fixArgs.batchSize, "batch-size", 0, "reserved for future batched preflight checks")
	fixCmd.Flags().StringVar(&fixArgs.operatorID, "operator-id", "", "operator id recorded in the audit trail and state store")
	fixCmd.Flags().BoolVar(&fixArgs.forceConfirmation, "force-confirmation", false, "bypass confirmation-threshold blockers")
	fixCmd.Flags().BoolVar(&fixArgs.createRestoreBundle, "create-restore-bundle", false, "write a restore bundle for this session's executed integrations")
	fixCmd.Flags().StringSliceVar(&fixArgs.maintenanceWindowDays, "maintenance-window", nil, "weekdays the run is allowed outside dry-run (e.g. sat,sun)")
	fixCmd.Flags().StringVar(&fixArgs.maintenanceWindowRange, "maintenance-window-range", "", "HH:MM-HH:MM range paired with --maintenance-window")
	fixCmd.Flags().BoolVar(&fixArgs.forceReprocess, "force-reprocess", false, "reprocess integrations regardless of --max-age")
	fixCmd.Flags().IntVar(&fixArgs.maxAgeHours, "max-age", 24, "skip integrations processed more recently than this many hours ago")
	fixCmd.Flags().BoolVar(&fixArgs.dryRun, "dry-run", true, "plan and audit actions without staging or executing them")
	applyFlag := fixCmd.Flags().Bool("apply", false, "execute the plan for real (overrides --dry-run)")
	fixCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if *applyFlag {
			fixArgs.dryRun = false
		}
	}

	fixCmd.MarkFlagRequired("operator-id")
}

func runFix(cmd *cobra.Command, args []string) error {
	sess, err := buildSession(fixArgs)
	if err != nil {
		return exitErr(2, err)
	}
	defer sess.Close()

	summary, err := sess.orch.Run(context.Background(), sess.sources, sess.opts)
	if err != nil {
		return exitErr(2, err)
	}

	renderSummary(summary)

	if summary.Failed() {
		return exitErr(1, fmt.Errorf("run completed with %d failed action(s) and %d error(s)", summary.ActionsFailed, len(summary.Errors)))
	}
	return nil
}

// renderSummary prints the run summary table spec.md §7 requires at the
// end of every run.
func renderSummary(summary orchestrator.Summary) {
	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetBorder(false)
	table.SetHeaderLine(true)
	table.SetColumnSeparator(" ")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"Integrations processed", fmt.Sprintf("%d", summary.IntegrationsProcessed)})
	table.Append([]string{"Integrations skipped", fmt.Sprintf("%d", summary.IntegrationsSkipped)})
	table.Append([]string{"Actions planned", fmt.Sprintf("%d", summary.ActionsPlanned)})
	table.Append([]string{"Actions executed", color.GreenString("%d", summary.ActionsExecuted)})
	table.Append([]string{"Actions failed", failedColor(summary.ActionsFailed)})
	table.Append([]string{"Actions skipped", color.YellowString("%d", summary.ActionsSkipped)})
	for kind, count := range summary.EventsByType {
		table.Append([]string{"Events: " + kind, fmt.Sprintf("%d", count)})
	}
	for sev, count := range summary.EventsBySeverity {
		table.Append([]string{"Events (" + sev + ")", fmt.Sprintf("%d", count)})
	}
	if summary.RestoreBundleID != "" {
		table.Append([]string{"Restore bundle", summary.RestoreBundleID})
	}
	table.Append([]string{"Session directory", summary.SessionDir})
	table.Render()

	for _, e := range summary.Errors {
		fmt.Println(color.RedString("  error: integration=%s kind=%s message=%s", e.IntegrationID, e.Kind, e.Message))
	}
}

// failedColor highlights a nonzero failed-action count the way the
// teacher's enhanced_discovery.go flags compliance issues.
func failedColor(n int) string {
	if n > 0 {
		return color.RedString("%d", n)
	}
	return fmt.Sprintf("%d", n)
}
