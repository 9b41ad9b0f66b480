// Package intent defines the manual-test intent model shared by the store,
// retriever and planner.
package intent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AutomationStatus records whether a manual test has an automated counterpart.
type AutomationStatus string

const (
	StatusAutomated AutomationStatus = "automated"
	StatusManual    AutomationStatus = "manual"
	StatusUnknown   AutomationStatus = "unknown"
)

// ParseAutomationStatus parses a status string. Empty input yields StatusUnknown.
func ParseAutomationStatus(s string) (AutomationStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "automated":
		return StatusAutomated, nil
	case "manual":
		return StatusManual, nil
	case "unknown", "":
		return StatusUnknown, nil
	default:
		return "", NewValidationError("unknown automation status %q (use automated, manual or unknown)", s)
	}
}

// ManualTestIntent is a recorded summary of what a manual test verifies.
// Intents are immutable once ingested; re-upserting the same ID replaces them.
type ManualTestIntent struct {
	ID               string            `json:"id" yaml:"id"`
	Summary          string            `json:"summary" yaml:"summary"`
	Feature          string            `json:"feature,omitempty" yaml:"feature,omitempty"`
	RiskAreas        []string          `json:"risk_areas,omitempty" yaml:"risk_areas,omitempty"`
	AutomationStatus AutomationStatus  `json:"automation_status,omitempty" yaml:"automation_status,omitempty"`
	SourceRef        string            `json:"source_ref,omitempty" yaml:"source_ref,omitempty"`
	Extensions       map[string]string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
}

// Validate checks the fields required for ingestion.
func (m ManualTestIntent) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return NewValidationError("intent id cannot be empty")
	}
	if strings.TrimSpace(m.Summary) == "" {
		return NewValidationError("intent %s: summary cannot be empty", m.ID)
	}
	if _, err := ParseAutomationStatus(string(m.AutomationStatus)); err != nil {
		return NewValidationError("intent %s: unknown automation status %q", m.ID, m.AutomationStatus)
	}
	return nil
}

// Normalize returns a canonical copy: trimmed text, lower-cased sorted unique
// risk areas, a concrete automation status and a copied extension map.
func (m ManualTestIntent) Normalize() ManualTestIntent {
	out := ManualTestIntent{
		ID:        strings.TrimSpace(m.ID),
		Summary:   strings.TrimSpace(m.Summary),
		Feature:   strings.TrimSpace(m.Feature),
		SourceRef: strings.TrimSpace(m.SourceRef),
		RiskAreas: NormalizeSet(m.RiskAreas),
	}
	status, err := ParseAutomationStatus(string(m.AutomationStatus))
	if err != nil {
		status = m.AutomationStatus
	}
	out.AutomationStatus = status
	if len(m.Extensions) > 0 {
		out.Extensions = make(map[string]string, len(m.Extensions))
		for k, v := range m.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}

// NormalizeSet lower-cases, trims, deduplicates and sorts a string set.
func NormalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// ChangeDescription is the free-text description of a new change, usually a
// ticket summary. Empty text is valid and carries no signal.
type ChangeDescription struct {
	RawText string `json:"raw_text"`
}

// RetrievedIntent is an intent paired with its similarity to a query.
type RetrievedIntent struct {
	Intent ManualTestIntent `json:"intent"`
	Score  float64          `json:"similarity_score"` // in [0,1], higher is more similar
}

// GapKind classifies a coverage gap.
type GapKind string

const (
	GapFeature    GapKind = "feature"
	GapRisk       GapKind = "risk"
	GapNoCoverage GapKind = "no_coverage"
)

// NoCoverageDescription is the description of the gap emitted when no
// historical intent is relevant to a change.
const NoCoverageDescription = "no historical coverage found"

// Gap describes a test that is likely needed but has no historical coverage.
type Gap struct {
	Kind        GapKind `json:"kind"`
	Subject     string  `json:"subject,omitempty"`
	Description string  `json:"description"`
}

func (g Gap) String() string {
	return g.Description
}

// NoCoverageGap returns the gap used when nothing relevant was retrieved.
func NoCoverageGap() Gap {
	return Gap{Kind: GapNoCoverage, Description: NoCoverageDescription}
}

// FeatureGap returns a gap naming an uncovered feature.
func FeatureGap(feature string) Gap {
	return Gap{
		Kind:        GapFeature,
		Subject:     feature,
		Description: fmt.Sprintf("feature %q has no historical test coverage", feature),
	}
}

// RiskGap returns a gap naming an uncovered risk area.
func RiskGap(risk string) Gap {
	return Gap{
		Kind:        GapRisk,
		Subject:     risk,
		Description: fmt.Sprintf("risk area %q is not covered by any test to rerun", risk),
	}
}

// RegressionPlan is the recommendation produced for a change.
type RegressionPlan struct {
	RerunTests     []string `json:"rerun_tests"`
	NewTestsNeeded []Gap    `json:"new_tests_needed"`
	RiskFocus      []string `json:"risk_focus"`
}

// GapDescriptions returns the description of every gap, in order.
func (p RegressionPlan) GapDescriptions() []string {
	out := make([]string, len(p.NewTestsNeeded))
	for i, g := range p.NewTestsNeeded {
		out[i] = g.Description
	}
	return out
}

// MarshalExtensions encodes the extension map for storage.
func MarshalExtensions(ext map[string]string) (string, error) {
	if len(ext) == 0 {
		return "", nil
	}
	data, err := json.Marshal(ext)
	if err != nil {
		return "", fmt.Errorf("failed to marshal extensions: %w", err)
	}
	return string(data), nil
}

// UnmarshalExtensions decodes a stored extension map.
func UnmarshalExtensions(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var ext map[string]string
	if err := json.Unmarshal([]byte(s), &ext); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extensions: %w", err)
	}
	return ext, nil
}
