package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catherinevee/integration-auditor/internal/model"
	"github.com/catherinevee/integration-auditor/internal/rulesconfig"
)

var businessRulesEdition string

var businessRulesCmd = &cobra.Command{
	Use:   "business-rules",
	Short: "Show the base business-rules.json, or one edition's requirements",
	RunE:  runBusinessRules,
}

func init() {
	rootCmd.AddCommand(businessRulesCmd)
	businessRulesCmd.Flags().StringVar(&businessRulesEdition, "edition", "", "print only this edition's requirements")
}

func runBusinessRules(cmd *cobra.Command, args []string) error {
	rules, err := rulesconfig.LoadBusinessRules(configDir + "/business-rules.json")
	if err != nil {
		return exitErr(2, err)
	}

	if businessRulesEdition == "" {
		data, err := json.MarshalIndent(rules, "", "  ")
		if err != nil {
			return exitErr(2, err)
		}
		fmt.Println(string(data))
		return nil
	}

	req, ok := rules.EditionRequirements[model.LicenseEdition(businessRulesEdition)]
	if !ok {
		return exitErr(2, fmt.Errorf("edition %q has no requirements in %s", businessRulesEdition, configDir))
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return exitErr(2, err)
	}
	fmt.Println(string(data))
	return nil
}
