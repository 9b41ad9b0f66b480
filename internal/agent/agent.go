// Package agent runs the regression-planning pipeline: retrieve relevant
// intents for a change, then plan from them.
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"qanerd/internal/intent"
	"qanerd/internal/logging"
)

// Retriever finds intents relevant to a change.
type Retriever interface {
	Retrieve(ctx context.Context, change intent.ChangeDescription, k int) ([]intent.RetrievedIntent, error)
}

// Planner turns retrieved intents into a plan.
type Planner interface {
	Plan(change intent.ChangeDescription, retrieved []intent.RetrievedIntent) intent.RegressionPlan
}

// Report is the outcome of one agent run.
type Report struct {
	RequestID string                   `json:"request_id"`
	Change    string                   `json:"change"`
	Plan      intent.RegressionPlan    `json:"plan"`
	Evidence  []intent.RetrievedIntent `json:"evidence"`
	Threshold float64                  `json:"threshold,omitempty"`
	StartedAt time.Time                `json:"started_at"`
	Duration  time.Duration            `json:"duration"`
}

// Agent wires a retriever to a planner.
type Agent struct {
	retriever Retriever
	planner   Planner
}

// New creates an agent.
func New(retriever Retriever, planner Planner) *Agent {
	return &Agent{retriever: retriever, planner: planner}
}

// thresholder is implemented by planners that expose their relevance cutoff.
type thresholder interface {
	Threshold() float64
}

// Run retrieves up to k intents for the change and plans from them. Retrieval
// errors are returned as-is.
func (a *Agent) Run(ctx context.Context, change intent.ChangeDescription, k int) (*Report, error) {
	report := &Report{
		RequestID: uuid.NewString(),
		Change:    change.RawText,
		StartedAt: time.Now(),
	}
	log := logging.WithRequestID(logging.CategoryPlanner, report.RequestID)
	log.Info("Planning change (%d chars, k=%d)", len(change.RawText), k)

	retrieved, err := a.retriever.Retrieve(ctx, change, k)
	if err != nil {
		log.Error("Retrieval failed: %v", err)
		return nil, err
	}
	report.Evidence = retrieved
	if report.Evidence == nil {
		report.Evidence = []intent.RetrievedIntent{}
	}

	report.Plan = a.planner.Plan(change, retrieved)
	if th, ok := a.planner.(thresholder); ok {
		report.Threshold = th.Threshold()
	}
	report.Duration = time.Since(report.StartedAt)

	log.Info("Plan ready in %v: rerun=%d gaps=%d focus=%v",
		report.Duration, len(report.Plan.RerunTests), len(report.Plan.NewTestsNeeded), report.Plan.RiskFocus)
	return report, nil
}
