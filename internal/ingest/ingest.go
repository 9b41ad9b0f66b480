package ingest

import (
	"context"
	"fmt"

	"qanerd/internal/intent"
	"qanerd/internal/logging"
)

// Sink receives ingested intents. *store.IntentStore implements it.
type Sink interface {
	Upsert(ctx context.Context, in intent.ManualTestIntent) error
}

// Result summarizes an ingestion run.
type Result struct {
	Upserted int      `json:"upserted"`
	IDs      []string `json:"ids"`
}

// Ingest upserts each intent in order and stops at the first failure. The
// result counts the intents written before the failure.
func Ingest(ctx context.Context, sink Sink, intents []intent.ManualTestIntent) (Result, error) {
	var res Result
	for _, in := range intents {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := sink.Upsert(ctx, in); err != nil {
			logging.IngestWarn("Ingest stopped at %q after %d intents: %v", in.ID, res.Upserted, err)
			return res, fmt.Errorf("failed to ingest %q: %w", in.ID, err)
		}
		res.Upserted++
		res.IDs = append(res.IDs, in.ID)
	}
	logging.Ingest("Ingested %d intents", res.Upserted)
	return res, nil
}
