package model

// PreflightResult is the Safety Controller's verdict on a proposed batch
// of integrations/plans before any action executes (spec.md §4.5).
type PreflightResult struct {
	Allowed         bool     `json:"allowed"`
	Scope           []string `json:"scope"`
	Blockers        []string `json:"blockers,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}
