// Package model defines the shared data types that flow through the
// ingest -> detect -> remediate -> plan -> execute pipeline.
package model

import "encoding/json"

// LicenseEdition is a tenant's license level. Comparisons against it are
// case-insensitive per the active BusinessRules configuration.
type LicenseEdition string

const (
	EditionStarter        LicenseEdition = "starter"
	EditionStandard       LicenseEdition = "standard"
	EditionPremium        LicenseEdition = "premium"
	EditionShopifyMarkets LicenseEdition = "shopifymarkets"
	EditionMarkets        LicenseEdition = "markets"
)

// IntegrationSnapshot is the immutable, fully joined view of one tenant
// integration assembled by the ingestor from the five CSV tables.
type IntegrationSnapshot struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	UserID           string   `json:"userId"`
	Version          string   `json:"version"`
	StoreCount       int      `json:"storeCount"`
	LicenseEdition   LicenseEdition `json:"licenseEdition"`
	UpdateInProgress bool     `json:"updateInProgress"`
	Settings         Settings `json:"settings"`
	Imports          []Resource   `json:"imports"`
	Exports          []Resource   `json:"exports"`
	Flows            []Resource   `json:"flows"`
	Connections      []Connection `json:"connections"`

	// Raw holds the reconstructed top-level JSON view of the row (column
	// name -> value) used for generic requiredProperties.topLevel checks
	// that the typed fields above don't cover one-to-one.
	Raw map[string]interface{} `json:"-"`

	// Warnings accumulates ingest-time degradations (e.g. malformed
	// SETTINGS JSON) that must surface as ingest-warning events rather
	// than abort the row.
	Warnings []string `json:"-"`
}

// Settings is the parsed SETTINGS cell. ConnectorEdition and Sections are
// pulled out because business rules reference them directly; Raw preserves
// the full object for generic settingsLevel property checks and for
// serialized-size computation.
type Settings struct {
	ConnectorEdition string                 `json:"connectorEdition"`
	Sections         []Section              `json:"sections,omitempty"`
	Raw              map[string]interface{} `json:"-"`
	// SizeBytes is len(json.Marshal(Raw)) computed once at ingest time.
	SizeBytes int `json:"-"`
}

// Section is one entry of settings.sections[].
type Section struct {
	Raw map[string]interface{} `json:"-"`
}

// Resource is a single import/export/flow entry. ExternalID is what
// requiredImports/requiredExports/requiredFlows match against.
type Resource struct {
	ExternalID string                 `json:"_id"`
	Name       string                 `json:"name"`
	Raw        map[string]interface{} `json:"-"`
}

// Connection is one row of the connections child table.
type Connection struct {
	ExternalID string                 `json:"_id"`
	Offline    bool                   `json:"offline"`
	Target     string                 `json:"target"`
	Raw        map[string]interface{} `json:"-"`
}

// SettingsJSON re-serializes Raw for audit payloads and size checks.
// It returns nil if Raw is empty.
func (s Settings) SettingsJSON() (json.RawMessage, error) {
	if s.Raw == nil {
		return nil, nil
	}
	return json.Marshal(s.Raw)
}
