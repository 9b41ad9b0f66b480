package store

import (
	"context"
	"fmt"

	"qanerd/internal/embedding"
	"qanerd/internal/intent"
	"qanerd/internal/logging"
)

// scoreExpr is cosine similarity clamped to [0,1]; zero vectors score 0.
const scoreExpr = `MAX(0.0, MIN(1.0, COALESCE(1.0 - vec_distance_cosine(embedding, ?), 0.0)))`

// Query returns up to k intents most similar to text, ordered by descending
// score with ties broken by ascending ID. k <= 0 returns no results.
func (s *IntentStore) Query(ctx context.Context, text string, k int) ([]intent.RetrievedIntent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	out, err := s.query(ctx, text, k)
	return out, s.timedOut(ctx, "query", err)
}

func (s *IntentStore) query(ctx context.Context, text string, k int) ([]intent.RetrievedIntent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []intent.RetrievedIntent{}, nil
	}

	timer := logging.StartTimer(logging.CategoryStore, "Query")
	defer timer.Stop()

	vec, err := embedding.EmbedFor(ctx, s.engine, text, embedding.PurposeQuery)
	if err != nil {
		return nil, intent.NewStoreUnavailableError("embedding engine unavailable", err)
	}
	blob, err := serializeVector(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var mismatched int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM intents WHERE dims != ?`, len(vec)).Scan(&mismatched); err != nil {
		return nil, unavailable("check embedding dimensions", err)
	}
	if mismatched > 0 {
		return nil, intent.NewStoreUnavailableError(
			fmt.Sprintf("%d intents were embedded with a different engine than %s; run reembed", mismatched, s.engine.Name()), nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+intentColumns+`, `+scoreExpr+` AS score
		 FROM intents
		 ORDER BY score DESC, id ASC
		 LIMIT ?`, blob, k)
	if err != nil {
		return nil, unavailable("query intents", err)
	}

	// k comes from callers unchecked; LIMIT bounds the rows, not the slice.
	out := make([]intent.RetrievedIntent, 0, min(k, 64))
	var ids []string
	for rows.Next() {
		var score float64
		in, err := scanIntent(rows, &score)
		if err != nil {
			rows.Close()
			return nil, unavailable("scan query result", err)
		}
		out = append(out, intent.RetrievedIntent{Intent: in, Score: embedding.ClampScore(score)})
		ids = append(ids, in.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable("query intents", err)
	}
	rows.Close()

	if len(ids) > 0 {
		risks, err := s.loadRisks(ctx, ids)
		if err != nil {
			return nil, unavailable("load risk areas", err)
		}
		for i := range out {
			out[i].Intent.RiskAreas = risks[out[i].Intent.ID]
		}
	}

	logging.StoreDebug("Query returned %d/%d results", len(out), k)
	return out, nil
}

// Reembed recomputes every stored embedding with the current engine. Run it
// after switching embedding providers or models.
func (s *IntentStore) Reembed(ctx context.Context) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Reembed")
	defer timer.Stop()

	intents, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	type update struct {
		id   string
		blob []byte
		dims int
	}
	updates := make([]update, 0, len(intents))
	for _, in := range intents {
		blob, dims, err := s.embedDocument(ctx, in.Summary)
		if err != nil {
			return 0, err
		}
		updates = append(updates, update{id: in.ID, blob: blob, dims: dims})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin reembed", err)
	}
	defer tx.Rollback()

	engineName := s.engine.Name()
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE intents SET embedding = ?, dims = ?, engine = ? WHERE id = ?`,
			u.blob, u.dims, engineName, u.id); err != nil {
			return 0, unavailable("update embedding", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit reembed", err)
	}

	logging.Store("Re-embedded %d intents with %s", len(updates), engineName)
	return len(updates), nil
}
