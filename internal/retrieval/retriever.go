// Package retrieval finds the historical manual-test intents most relevant to
// a change description.
package retrieval

import (
	"context"

	"qanerd/internal/intent"
	"qanerd/internal/logging"
)

// DefaultK is the number of intents retrieved when the caller asks for k <= 0.
const DefaultK = 3

// Querier answers similarity queries. *store.IntentStore implements it.
type Querier interface {
	Query(ctx context.Context, text string, k int) ([]intent.RetrievedIntent, error)
}

// Retriever forwards change descriptions to a Querier. It has no state of its
// own beyond the querier it was built with.
type Retriever struct {
	store Querier
}

// New creates a retriever over the given store.
func New(store Querier) *Retriever {
	return &Retriever{store: store}
}

// Retrieve returns at most k intents similar to the change, most similar
// first. Store errors are returned unmodified.
func (r *Retriever) Retrieve(ctx context.Context, change intent.ChangeDescription, k int) ([]intent.RetrievedIntent, error) {
	if k <= 0 {
		k = DefaultK
	}
	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	defer timer.Stop()

	results, err := r.store.Query(ctx, change.RawText, k)
	if err != nil {
		logging.RetrievalDebug("Retrieve failed: %v", err)
		return nil, err
	}
	logging.RetrievalDebug("Retrieved %d intents (k=%d)", len(results), k)
	return results, nil
}
