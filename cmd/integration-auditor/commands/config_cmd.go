package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catherinevee/integration-auditor/internal/config"
	"github.com/catherinevee/integration-auditor/internal/rulesconfig"
)

var (
	configShow     bool
	configValidate bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or validate the CLI's own settings and business-rules configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configShow, "show", false, "print the effective CLI settings")
	configCmd.Flags().BoolVar(&configValidate, "validate", false, "structurally validate business-rules.json and remediation-logic.json")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if !configShow && !configValidate {
		configShow = true
	}

	if configShow {
		mgr, err := config.NewManager("auditor.yaml", rootLogger())
		if err != nil {
			return exitErr(2, err)
		}
		cli := mgr.Get()
		fmt.Printf("logLevel:    %s\n", cli.LogLevel)
		fmt.Printf("configDir:   %s\n", cli.ConfigDir)
		fmt.Printf("inputDir:    %s\n", cli.InputDir)
		fmt.Printf("outputDir:   %s\n", cli.OutputDir)
		fmt.Printf("stateDbPath: %s\n", cli.StateDBPath)
		fmt.Printf("auditDir:    %s\n", cli.AuditDir)
	}

	if configValidate {
		result := rulesconfig.Validate(configDir)
		fmt.Printf("business rules:    %s\n", result.BusinessRulesPath)
		fmt.Printf("remediation logic: %s\n", result.RemediationLogicPath)
		if result.OK() {
			fmt.Println("ok")
			return nil
		}
		for _, e := range result.Errors {
			fmt.Println("  " + e)
		}
		return exitErr(2, fmt.Errorf("config validation found %d error(s)", len(result.Errors)))
	}
	return nil
}
