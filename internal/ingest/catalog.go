// Package ingest loads manual-test intents from YAML catalogs and markdown
// front matter and feeds them to the intent store.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"qanerd/internal/intent"
)

// Catalog is the on-disk YAML catalog format.
type Catalog struct {
	Intents []intent.ManualTestIntent `yaml:"intents"`
}

// LoadCatalog reads a YAML catalog. Intents without a source reference get
// the catalog path.
func LoadCatalog(path string) ([]intent.ManualTestIntent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, intent.NewValidationError("catalog %s: %v", path, err)
	}
	for i := range cat.Intents {
		if cat.Intents[i].SourceRef == "" {
			cat.Intents[i].SourceRef = path
		}
	}
	return cat.Intents, nil
}

// SaveCatalog writes intents as a YAML catalog, creating parent directories.
func SaveCatalog(path string, intents []intent.ManualTestIntent) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	data, err := yaml.Marshal(Catalog{Intents: intents})
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// SampleCatalog returns the seed intents written by `qanerd init`.
func SampleCatalog() []intent.ManualTestIntent {
	return []intent.ManualTestIntent{
		{
			ID:               "login-invalid-password",
			Summary:          "Invalid login attempts should be rejected with clear error messaging.",
			Feature:          "Authentication",
			RiskAreas:        []string{"security", "validation"},
			AutomationStatus: intent.StatusAutomated,
			SourceRef:        "manual-tests/login/login-invalid-password.md",
			Extensions:       map[string]string{"page": "Login"},
		},
		{
			ID:               "signup-duplicate-email",
			Summary:          "Registering with an email that already has an account shows a duplicate account error.",
			Feature:          "Signup",
			RiskAreas:        []string{"validation"},
			AutomationStatus: intent.StatusManual,
		},
		{
			ID:               "cart-add-item",
			Summary:          "Adding an item to the cart updates the cart badge and subtotal.",
			Feature:          "Cart",
			RiskAreas:        []string{"performance"},
			AutomationStatus: intent.StatusManual,
		},
	}
}
