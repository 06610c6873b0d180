package rulesconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// LoadRemediationLogic reads config/remediation-logic.json: a map of
// corruptionType -> ordered action templates.
func LoadRemediationLogic(path string) (model.RemediationLogic, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading remediation logic %s: %w", path, err)
	}

	var logic model.RemediationLogic
	if err := json.Unmarshal(raw, &logic); err != nil {
		return nil, fmt.Errorf("decoding remediation logic: %w", err)
	}
	for corruptionType, templates := range logic {
		for i, tmpl := range templates {
			if tmpl.TemplateID == "" {
				return nil, fmt.Errorf("remediation logic %q template %d: missing id", corruptionType, i)
			}
			if tmpl.ActionType == "" {
				return nil, fmt.Errorf("remediation logic %q template %q: missing actionType", corruptionType, tmpl.TemplateID)
			}
		}
	}
	return logic, nil
}
