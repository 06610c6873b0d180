package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var auditArgs fixFlags

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report corruption and the remediation plan without staging or executing anything",
	Long: `audit runs detection and planning exactly like fix, but always in dry-run
mode: no script is staged under remediation-scripts/ and no restore bundle
is written. Use it to see what a fix run would do.`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditArgs.product, "product", "", "product name (selects config/products/<product> overrides)")
	auditCmd.Flags().StringVar(&auditArgs.edition, "edition", "", "only report on integrations with this license edition")
	auditCmd.Flags().StringVar(&auditArgs.version, "version", "", "product version (selects the versioned override file)")
	auditCmd.Flags().StringVar(&auditArgs.tier, "tier", "", "input subdirectory under --input-dir")
	auditCmd.Flags().StringVar(&auditArgs.operatorID, "operator-id", "", "operator id recorded in the audit trail and state store")
	auditCmd.Flags().BoolVar(&auditArgs.forceReprocess, "force-reprocess", false, "reprocess integrations regardless of --max-age")
	auditCmd.Flags().IntVar(&auditArgs.maxAgeHours, "max-age", 24, "skip integrations processed more recently than this many hours ago")

	auditCmd.MarkFlagRequired("operator-id")
}

func runAudit(cmd *cobra.Command, args []string) error {
	auditArgs.dryRun = true

	sess, err := buildSession(auditArgs)
	if err != nil {
		return exitErr(2, err)
	}
	defer sess.Close()

	summary, err := sess.orch.Run(context.Background(), sess.sources, sess.opts)
	if err != nil {
		return exitErr(2, err)
	}

	renderSummary(summary)
	return nil
}
