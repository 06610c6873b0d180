// Package rulesconfig loads the JSON-declared business-rules and
// remediation-logic configuration named in SPEC_FULL.md §6. Rules are
// trusted configuration: this package validates structure (required keys
// present, JSON well-formed) but never business semantics.
package rulesconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/catherinevee/integration-auditor/internal/model"
)

// requiredBusinessRulesKeys are the top-level keys SPEC_FULL.md §6 requires
// in every business-rules document.
var requiredBusinessRulesKeys = []string{"editionRequirements", "licenseValidation", "requiredProperties"}

// LoadBusinessRules reads and validates a single business-rules JSON file.
func LoadBusinessRules(path string) (*model.BusinessRules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading business rules %s: %w", path, err)
	}
	return parseBusinessRules(raw)
}

func parseBusinessRules(raw []byte) (*model.BusinessRules, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("business rules is not a JSON object: %w", err)
	}
	for _, key := range requiredBusinessRulesKeys {
		if _, ok := generic[key]; !ok {
			return nil, fmt.Errorf("business rules missing required key %q", key)
		}
	}

	var rules model.BusinessRules
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("decoding business rules: %w", err)
	}
	return &rules, nil
}

// LoadForProduct resolves the effective business rules for (product,
// version): it starts from configDir/business-rules.json and layers
// configDir/products/<product>/<version>-business-rules.json on top, field
// by field, per SPEC_FULL.md §6's "per-product overrides".
func LoadForProduct(configDir, product, version string) (*model.BusinessRules, error) {
	base, err := LoadBusinessRules(filepath.Join(configDir, "business-rules.json"))
	if err != nil {
		return nil, err
	}
	base.Product = product
	base.Version = version

	overridePath := filepath.Join(configDir, "products", product, version+"-business-rules.json")
	overrideRaw, err := os.ReadFile(overridePath)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, fmt.Errorf("reading product override %s: %w", overridePath, err)
	}

	override, err := parseBusinessRules(overrideRaw)
	if err != nil {
		return nil, fmt.Errorf("product override %s: %w", overridePath, err)
	}
	merged := mergeBusinessRules(*base, *override)
	merged.Product = product
	merged.Version = version
	return &merged, nil
}

// mergeBusinessRules layers override on top of base: any non-zero-value
// field on override wins, per edition for EditionRequirements.
func mergeBusinessRules(base, override model.BusinessRules) model.BusinessRules {
	merged := base
	if merged.EditionRequirements == nil {
		merged.EditionRequirements = map[model.LicenseEdition]model.EditionRequirement{}
	}
	for edition, req := range override.EditionRequirements {
		merged.EditionRequirements[edition] = req
	}
	if len(override.LicenseValidation.ValidEditions) > 0 {
		merged.LicenseValidation = override.LicenseValidation
	}
	if len(override.RequiredProperties.TopLevel) > 0 ||
		len(override.RequiredProperties.SettingsLevel) > 0 ||
		len(override.RequiredProperties.SectionProperties) > 0 {
		merged.RequiredProperties = override.RequiredProperties
	}
	if override.Tolerances.ResourceCountTolerance != 0 {
		merged.Tolerances = override.Tolerances
	}
	return merged
}

// ListProducts enumerates the product directories under configDir/products.
func ListProducts(configDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(configDir, "products"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing products: %w", err)
	}
	var products []string
	for _, e := range entries {
		if e.IsDir() {
			products = append(products, e.Name())
		}
	}
	return products, nil
}
