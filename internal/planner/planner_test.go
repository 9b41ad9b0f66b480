package planner

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qanerd/internal/intent"
)

func loginIntent() intent.ManualTestIntent {
	return intent.ManualTestIntent{
		ID:               "login-invalid-password",
		Summary:          "Invalid login attempts should be rejected with clear error messaging.",
		Feature:          "Authentication",
		RiskAreas:        []string{"validation", "security"},
		AutomationStatus: intent.StatusAutomated,
	}
}

func newDefault(t *testing.T) *Planner {
	t.Helper()
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	return p
}

func TestNew_RejectsThresholdOutsideUnitRange(t *testing.T) {
	for _, th := range []float64{-0.01, 1.01, math.NaN()} {
		cfg := DefaultConfig()
		cfg.RelevanceThreshold = th
		_, err := New(cfg)
		require.Error(t, err, "threshold %v", th)
		assert.True(t, errors.Is(err, intent.ErrValidation))
	}
	for _, th := range []float64{0, 1} {
		cfg := DefaultConfig()
		cfg.RelevanceThreshold = th
		_, err := New(cfg)
		assert.NoError(t, err)
	}
}

func TestNew_RejectsEmptyTermName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Risks = append(cfg.Risks, Term{Name: "  "})
	_, err := New(cfg)
	assert.True(t, errors.Is(err, intent.ErrValidation))
}

func TestPlan_EmptyRetrievedYieldsNoCoverage(t *testing.T) {
	p := newDefault(t)
	plan := p.Plan(intent.ChangeDescription{RawText: "login fails with wrong password"}, nil)

	assert.Equal(t, []string{}, plan.RerunTests)
	assert.Equal(t, []string{}, plan.RiskFocus)
	assert.Equal(t, []string{intent.NoCoverageDescription}, plan.GapDescriptions())
}

func TestPlan_AllBelowThresholdYieldsNoCoverage(t *testing.T) {
	p := newDefault(t)
	retrieved := []intent.RetrievedIntent{{Intent: loginIntent(), Score: 0.2}}
	plan := p.Plan(intent.ChangeDescription{RawText: "checkout is slow"}, retrieved)

	assert.Empty(t, plan.RerunTests)
	assert.Empty(t, plan.RiskFocus)
	assert.Equal(t, []string{intent.NoCoverageDescription}, plan.GapDescriptions())
}

func TestPlan_LoginExample(t *testing.T) {
	p := newDefault(t)
	retrieved := []intent.RetrievedIntent{{Intent: loginIntent(), Score: 0.81}}
	plan := p.Plan(intent.ChangeDescription{RawText: "login fails with wrong password"}, retrieved)

	want := intent.RegressionPlan{
		RerunTests:     []string{"login-invalid-password"},
		NewTestsNeeded: []intent.Gap{},
		RiskFocus:      []string{"security", "validation"},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_ThresholdIsInclusive(t *testing.T) {
	p := newDefault(t)
	retrieved := []intent.RetrievedIntent{{Intent: loginIntent(), Score: DefaultRelevanceThreshold}}
	plan := p.Plan(intent.ChangeDescription{}, retrieved)
	assert.Equal(t, []string{"login-invalid-password"}, plan.RerunTests)
}

func TestPlan_OrdersByScoreThenIDAndDedupes(t *testing.T) {
	p := newDefault(t)
	mk := func(id string, score float64, risks ...string) intent.RetrievedIntent {
		return intent.RetrievedIntent{
			Intent: intent.ManualTestIntent{ID: id, Summary: id, RiskAreas: risks},
			Score:  score,
		}
	}
	retrieved := []intent.RetrievedIntent{
		mk("b", 0.7, "performance"),
		mk("a", 0.7),
		mk("c", 0.9, "security"),
		mk("b", 0.6),
		mk("d", 0.1, "accessibility"),
	}
	plan := p.Plan(intent.ChangeDescription{}, retrieved)

	assert.Equal(t, []string{"c", "a", "b"}, plan.RerunTests)
	assert.Equal(t, []string{"performance", "security"}, plan.RiskFocus)
	assert.Empty(t, plan.NewTestsNeeded)
}

func TestPlan_FeatureGapForUncoveredMentionedFeature(t *testing.T) {
	p := newDefault(t)
	retrieved := []intent.RetrievedIntent{{Intent: loginIntent(), Score: 0.6}}
	plan := p.Plan(intent.ChangeDescription{RawText: "Login now redirects to the cart after sign in"}, retrieved)

	want := []intent.Gap{intent.FeatureGap("Cart")}
	if diff := cmp.Diff(want, plan.NewTestsNeeded); diff != "" {
		t.Errorf("gaps mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_FeatureMatchUsesWordBoundaries(t *testing.T) {
	p := newDefault(t)
	retrieved := []intent.RetrievedIntent{{Intent: loginIntent(), Score: 0.6}}
	// "carton" and "navigate" contain keywords but are not mentions.
	plan := p.Plan(intent.ChangeDescription{RawText: "carton labels navigate login"}, retrieved)
	assert.Empty(t, plan.NewTestsNeeded)
}

func TestPlan_RiskGapsFollowFeatureGapsInCatalogOrder(t *testing.T) {
	p := newDefault(t)
	auth := loginIntent()
	auth.RiskAreas = []string{"validation"}
	retrieved := []intent.RetrievedIntent{{Intent: auth, Score: 0.9}}

	plan := p.Plan(intent.ChangeDescription{
		RawText: "Registration page is slow and leaks the password token",
	}, retrieved)

	want := []string{
		intent.FeatureGap("Signup").Description,
		intent.RiskGap("security").Description,
		intent.RiskGap("performance").Description,
	}
	assert.Equal(t, want, plan.GapDescriptions())
}

func TestPlan_FeatureCoveredByAnyRetrievedIntent(t *testing.T) {
	p := newDefault(t)
	cart := intent.ManualTestIntent{ID: "cart-add", Summary: "Add item to cart", Feature: "cart"}
	retrieved := []intent.RetrievedIntent{
		{Intent: loginIntent(), Score: 0.9},
		{Intent: cart, Score: 0.3},
	}
	plan := p.Plan(intent.ChangeDescription{RawText: "login then checkout"}, retrieved)
	assert.Equal(t, []string{"login-invalid-password"}, plan.RerunTests)
	assert.Empty(t, plan.NewTestsNeeded)
}

func TestPlan_Deterministic(t *testing.T) {
	p := newDefault(t)
	change := intent.ChangeDescription{RawText: "menu header is slow on login"}
	retrieved := []intent.RetrievedIntent{
		{Intent: loginIntent(), Score: 0.55},
		{Intent: intent.ManualTestIntent{ID: "nav-menu", Summary: "Menu opens", Feature: "Navigation", RiskAreas: []string{"accessibility"}}, Score: 0.55},
	}
	first := p.Plan(change, retrieved)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, p.Plan(change, retrieved)); diff != "" {
			t.Fatalf("plan changed between runs (-first +got):\n%s", diff)
		}
	}
}

func TestPlan_DoesNotMutateInput(t *testing.T) {
	p := newDefault(t)
	retrieved := []intent.RetrievedIntent{
		{Intent: intent.ManualTestIntent{ID: "low", Summary: "x"}, Score: 0.6},
		{Intent: intent.ManualTestIntent{ID: "high", Summary: "y"}, Score: 0.9},
	}
	p.Plan(intent.ChangeDescription{}, retrieved)
	assert.Equal(t, "low", retrieved[0].Intent.ID)
}

func TestPlan_NonASCIITermsMatchOnWordBoundaries(t *testing.T) {
	p, err := New(Config{
		RelevanceThreshold: 0.5,
		Features: []Term{
			{Name: "Zahlungsübersicht"},
			{Name: "Editor", Keywords: []string{"c++"}},
		},
	})
	require.NoError(t, err)
	retrieved := []intent.RetrievedIntent{{Intent: loginIntent(), Score: 0.9}}

	plan := p.Plan(intent.ChangeDescription{RawText: "Neue Zahlungsübersicht, c++ highlighting"}, retrieved)
	assert.Equal(t, []string{
		intent.FeatureGap("Zahlungsübersicht").Description,
		intent.FeatureGap("Editor").Description,
	}, plan.GapDescriptions())

	// Embedded in a longer word is not a mention.
	plan = p.Plan(intent.ChangeDescription{RawText: "Zahlungsübersichten und c++x"}, retrieved)
	assert.Empty(t, plan.NewTestsNeeded)
}

func TestPlan_NaNScoreNeverReruns(t *testing.T) {
	p := newDefault(t)
	retrieved := []intent.RetrievedIntent{
		{Intent: intent.ManualTestIntent{ID: "nan", Summary: "x", RiskAreas: []string{"performance"}}, Score: math.NaN()},
		{Intent: loginIntent(), Score: 0.7},
		{Intent: intent.ManualTestIntent{ID: "nan-2", Summary: "y"}, Score: math.NaN()},
	}
	plan := p.Plan(intent.ChangeDescription{RawText: "login"}, retrieved)
	assert.Equal(t, []string{"login-invalid-password"}, plan.RerunTests)
	assert.Equal(t, []string{"security", "validation"}, plan.RiskFocus)

	zero, err := New(Config{RelevanceThreshold: 0})
	require.NoError(t, err)
	plan = zero.Plan(intent.ChangeDescription{}, retrieved)
	assert.Equal(t, []string{"login-invalid-password"}, plan.RerunTests)
}
