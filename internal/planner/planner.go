// Package planner turns retrieved manual-test intents into a regression plan:
// which existing tests to rerun, which risk areas to focus on and where new
// tests are needed.
package planner

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"qanerd/internal/intent"
	"qanerd/internal/logging"
)

// DefaultRelevanceThreshold is the minimum similarity for a retrieved intent
// to be recommended for rerun.
const DefaultRelevanceThreshold = 0.5

// Term is a catalog entry: a canonical name plus the words that mention it in
// a change description. The name itself always counts as a mention.
type Term struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Config configures a Planner.
type Config struct {
	RelevanceThreshold float64
	Features           []Term
	Risks              []Term
}

// DefaultConfig returns the default threshold and catalogs.
func DefaultConfig() Config {
	return Config{
		RelevanceThreshold: DefaultRelevanceThreshold,
		Features: []Term{
			{Name: "Authentication", Keywords: []string{"login", "logout", "password", "auth", "credentials", "session", "sign in"}},
			{Name: "Signup", Keywords: []string{"signup", "sign up", "register", "registration"}},
			{Name: "Cart", Keywords: []string{"cart", "basket", "checkout"}},
			{Name: "Navigation", Keywords: []string{"header", "menu", "nav", "navigation"}},
		},
		Risks: []Term{
			{Name: "security", Keywords: []string{"password", "token", "permission", "xss", "csrf"}},
			{Name: "validation", Keywords: []string{"invalid", "validate"}},
			{Name: "performance", Keywords: []string{"slow", "latency", "timeout"}},
			{Name: "accessibility", Keywords: []string{"a11y", "screen reader"}},
		},
	}
}

// wordEdge matches a boundary between a term and its surroundings. RE2's \b
// only knows ASCII word characters, so boundaries are spelled out over
// Unicode letters and digits.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

// compiledTerm matches any of a term's words on word boundaries.
type compiledTerm struct {
	name    string
	pattern *regexp.Regexp
}

func compileTerm(t Term) (compiledTerm, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return compiledTerm{}, intent.NewValidationError("catalog term name cannot be empty")
	}
	words := []string{regexp.QuoteMeta(name)}
	for _, kw := range t.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			words = append(words, regexp.QuoteMeta(kw))
		}
	}
	re, err := regexp.Compile(`(?i)` + wordStart + `(?:` + strings.Join(words, "|") + `)` + wordEnd)
	if err != nil {
		return compiledTerm{}, intent.NewValidationError("catalog term %q: %v", name, err)
	}
	return compiledTerm{name: name, pattern: re}, nil
}

// Planner builds regression plans. It holds no storage and is safe for
// concurrent use.
type Planner struct {
	threshold float64
	features  []compiledTerm
	risks     []compiledTerm
}

// New creates a planner. The threshold must lie within [0,1].
func New(cfg Config) (*Planner, error) {
	if math.IsNaN(cfg.RelevanceThreshold) || cfg.RelevanceThreshold < 0 || cfg.RelevanceThreshold > 1 {
		return nil, intent.NewValidationError("relevance threshold must be within [0,1], got %v", cfg.RelevanceThreshold)
	}
	p := &Planner{threshold: cfg.RelevanceThreshold}
	for _, t := range cfg.Features {
		ct, err := compileTerm(t)
		if err != nil {
			return nil, err
		}
		p.features = append(p.features, ct)
	}
	for _, t := range cfg.Risks {
		ct, err := compileTerm(t)
		if err != nil {
			return nil, err
		}
		p.risks = append(p.risks, ct)
	}
	return p, nil
}

// Threshold returns the relevance threshold.
func (p *Planner) Threshold() float64 {
	return p.threshold
}

// rankScore orders NaN scores below every real score.
func rankScore(s float64) float64 {
	if math.IsNaN(s) {
		return math.Inf(-1)
	}
	return s
}

// Plan derives a regression plan from a change and the intents retrieved for
// it. Identical inputs always yield identical plans.
func (p *Planner) Plan(change intent.ChangeDescription, retrieved []intent.RetrievedIntent) intent.RegressionPlan {
	plan := intent.RegressionPlan{
		RerunTests:     []string{},
		NewTestsNeeded: []intent.Gap{},
		RiskFocus:      []string{},
	}

	ordered := make([]intent.RetrievedIntent, len(retrieved))
	copy(ordered, retrieved)
	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := rankScore(ordered[i].Score), rankScore(ordered[j].Score)
		if si != sj {
			return si > sj
		}
		return ordered[i].Intent.ID < ordered[j].Intent.ID
	})

	seen := make(map[string]struct{})
	var risks []string
	for _, r := range ordered {
		// NaN fails every comparison and never passes the threshold.
		if !(r.Score >= p.threshold) {
			continue
		}
		if _, dup := seen[r.Intent.ID]; dup {
			continue
		}
		seen[r.Intent.ID] = struct{}{}
		plan.RerunTests = append(plan.RerunTests, r.Intent.ID)
		risks = append(risks, r.Intent.RiskAreas...)
	}
	if focus := intent.NormalizeSet(risks); focus != nil {
		plan.RiskFocus = focus
	}

	if len(plan.RerunTests) == 0 {
		plan.NewTestsNeeded = append(plan.NewTestsNeeded, intent.NoCoverageGap())
		logging.PlannerDebug("No intent above threshold %.2f among %d retrieved", p.threshold, len(retrieved))
		return plan
	}

	covered := make(map[string]struct{})
	for _, r := range retrieved {
		if f := strings.ToLower(strings.TrimSpace(r.Intent.Feature)); f != "" {
			covered[f] = struct{}{}
		}
	}
	for _, f := range p.features {
		if !f.pattern.MatchString(change.RawText) {
			continue
		}
		if _, ok := covered[strings.ToLower(f.name)]; !ok {
			plan.NewTestsNeeded = append(plan.NewTestsNeeded, intent.FeatureGap(f.name))
		}
	}

	focused := make(map[string]struct{}, len(plan.RiskFocus))
	for _, r := range plan.RiskFocus {
		focused[r] = struct{}{}
	}
	for _, r := range p.risks {
		if !r.pattern.MatchString(change.RawText) {
			continue
		}
		if _, ok := focused[strings.ToLower(r.name)]; !ok {
			plan.NewTestsNeeded = append(plan.NewTestsNeeded, intent.RiskGap(r.name))
		}
	}

	logging.PlannerDebug("Plan: rerun=%d focus=%d gaps=%d", len(plan.RerunTests), len(plan.RiskFocus), len(plan.NewTestsNeeded))
	return plan
}
