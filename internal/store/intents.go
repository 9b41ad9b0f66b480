package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"qanerd/internal/embedding"
	"qanerd/internal/intent"
	"qanerd/internal/logging"
)

// Upsert inserts or replaces an intent. The embedding is computed before the
// write and the row replacement runs in one transaction, so readers never see
// a partially written intent. On error the store is unchanged.
func (s *IntentStore) Upsert(ctx context.Context, in intent.ManualTestIntent) error {
	_, err := s.UpsertBatch(ctx, []intent.ManualTestIntent{in})
	return err
}

// UpsertBatch validates and embeds every intent, then writes them all in one
// transaction. Any invalid intent rejects the whole batch.
func (s *IntentStore) UpsertBatch(ctx context.Context, intents []intent.ManualTestIntent) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.upsertBatch(ctx, intents)
	return n, s.timedOut(ctx, "upsert", err)
}

func (s *IntentStore) upsertBatch(ctx context.Context, intents []intent.ManualTestIntent) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if len(intents) == 0 {
		return 0, nil
	}

	type pending struct {
		in   intent.ManualTestIntent
		ext  string
		blob []byte
		dims int
	}
	rows := make([]pending, 0, len(intents))
	for _, raw := range intents {
		in := raw.Normalize()
		if err := in.Validate(); err != nil {
			return 0, err
		}
		ext, err := intent.MarshalExtensions(in.Extensions)
		if err != nil {
			return 0, intent.NewValidationError("intent %s: %v", in.ID, err)
		}
		rows = append(rows, pending{in: in, ext: ext})
	}
	for i := range rows {
		blob, dims, err := s.embedDocument(ctx, rows[i].in.Summary)
		if err != nil {
			return 0, err
		}
		rows[i].blob, rows[i].dims = blob, dims
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin upsert", err)
	}
	defer tx.Rollback()

	engineName := s.engine.Name()
	for _, r := range rows {
		in := r.in
		_, err := tx.ExecContext(ctx, `
			INSERT INTO intents (id, summary, feature, automation_status, source_ref, extensions, embedding, engine, dims, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET
				summary = excluded.summary,
				feature = excluded.feature,
				automation_status = excluded.automation_status,
				source_ref = excluded.source_ref,
				extensions = excluded.extensions,
				embedding = excluded.embedding,
				engine = excluded.engine,
				dims = excluded.dims,
				updated_at = CURRENT_TIMESTAMP`,
			in.ID, in.Summary, in.Feature, string(in.AutomationStatus), in.SourceRef, r.ext, r.blob, engineName, r.dims)
		if err != nil {
			return 0, unavailable("upsert intent", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM intent_risks WHERE intent_id = ?`, in.ID); err != nil {
			return 0, unavailable("replace risk areas", err)
		}
		for _, risk := range in.RiskAreas {
			if _, err := tx.ExecContext(ctx, `INSERT INTO intent_risks (intent_id, risk) VALUES (?, ?)`, in.ID, risk); err != nil {
				return 0, unavailable("insert risk area", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit upsert", err)
	}

	logging.StoreDebug("Upserted %d intents", len(rows))
	return len(rows), nil
}

const intentColumns = `id, summary, feature, automation_status, source_ref, extensions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntent(row rowScanner, extra ...interface{}) (intent.ManualTestIntent, error) {
	var (
		in     intent.ManualTestIntent
		status string
		ext    string
	)
	dest := append([]interface{}{&in.ID, &in.Summary, &in.Feature, &status, &in.SourceRef, &ext}, extra...)
	if err := row.Scan(dest...); err != nil {
		return in, err
	}
	in.AutomationStatus = intent.AutomationStatus(status)
	m, err := intent.UnmarshalExtensions(ext)
	if err != nil {
		return in, err
	}
	in.Extensions = m
	return in, nil
}

// loadRisks returns risk areas keyed by intent ID, each sorted. An empty ids
// slice loads every intent's risks.
func (s *IntentStore) loadRisks(ctx context.Context, ids []string) (map[string][]string, error) {
	query := `SELECT intent_id, risk FROM intent_risks`
	args := make([]interface{}, len(ids))
	if len(ids) > 0 {
		query += ` WHERE intent_id IN (?` + strings.Repeat(`, ?`, len(ids)-1) + `)`
		for i, id := range ids {
			args[i] = id
		}
	}
	query += ` ORDER BY intent_id, risk`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var id, risk string
		if err := rows.Scan(&id, &risk); err != nil {
			return nil, err
		}
		out[id] = append(out[id], risk)
	}
	return out, rows.Err()
}

// Get returns the intent with the given ID.
func (s *IntentStore) Get(ctx context.Context, id string) (intent.ManualTestIntent, error) {
	if err := s.checkOpen(); err != nil {
		return intent.ManualTestIntent{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+intentColumns+` FROM intents WHERE id = ?`, strings.TrimSpace(id))
	in, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return intent.ManualTestIntent{}, intent.NewNotFoundError(id)
	}
	if err != nil {
		return intent.ManualTestIntent{}, unavailable("get intent", err)
	}
	risks, err := s.loadRisks(ctx, []string{in.ID})
	if err != nil {
		return intent.ManualTestIntent{}, unavailable("load risk areas", err)
	}
	in.RiskAreas = risks[in.ID]
	return in, nil
}

// Delete removes an intent.
func (s *IntentStore) Delete(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin delete", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM intents WHERE id = ?`, id)
	if err != nil {
		return unavailable("delete intent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return intent.NewNotFoundError(id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM intent_risks WHERE intent_id = ?`, id); err != nil {
		return unavailable("delete risk areas", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit delete", err)
	}
	logging.StoreDebug("Deleted intent %s", id)
	return nil
}

// List returns every intent ordered by ID.
func (s *IntentStore) List(ctx context.Context) ([]intent.ManualTestIntent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+intentColumns+` FROM intents ORDER BY id`)
	if err != nil {
		return nil, unavailable("list intents", err)
	}
	var out []intent.ManualTestIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			rows.Close()
			return nil, unavailable("scan intent", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable("list intents", err)
	}
	rows.Close()

	risks, err := s.loadRisks(ctx, nil)
	if err != nil {
		return nil, unavailable("load risk areas", err)
	}
	for i := range out {
		out[i].RiskAreas = risks[out[i].ID]
	}
	return out, nil
}

// Features returns the distinct non-empty feature names, sorted.
func (s *IntentStore) Features(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT feature FROM intents WHERE feature != '' ORDER BY feature`)
	if err != nil {
		return nil, unavailable("list features", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, unavailable("scan feature", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list features", err)
	}
	return out, nil
}

// Stats summarizes the store contents.
type Stats struct {
	Intents         int            `json:"intents"`
	Features        int            `json:"features"`
	RiskAreas       map[string]int `json:"risk_areas"`
	ByStatus        map[string]int `json:"by_status"`
	StaleEmbeddings int            `json:"stale_embeddings"`
	Engine          string         `json:"engine"`
	EngineError     string         `json:"engine_error,omitempty"`
	Backend         string         `json:"backend"`
	SchemaVersion   int            `json:"schema_version"`
}

// Stats reports intent counts by status and risk area, how many embeddings
// were produced by a different engine than the current one, and whether the
// embedding engine is reachable.
func (s *IntentStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	st := &Stats{
		RiskAreas: make(map[string]int),
		ByStatus:  make(map[string]int),
		Engine:    s.engine.Name(),
		Backend:   s.backend,
	}
	if hc, ok := s.engine.(embedding.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			st.EngineError = err.Error()
		}
	}
	dims := s.engine.Dimensions()

	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT CASE WHEN feature != '' THEN feature END),
		       COALESCE(SUM(CASE WHEN engine != ? OR dims != ? THEN 1 ELSE 0 END), 0)
		FROM intents`, st.Engine, dims).Scan(&st.Intents, &st.Features, &st.StaleEmbeddings)
	if err != nil {
		return nil, unavailable("count intents", err)
	}

	if err := s.countInto(ctx, `SELECT automation_status, COUNT(*) FROM intents GROUP BY automation_status`, st.ByStatus); err != nil {
		return nil, unavailable("count statuses", err)
	}
	if err := s.countInto(ctx, `SELECT risk, COUNT(*) FROM intent_risks GROUP BY risk`, st.RiskAreas); err != nil {
		return nil, unavailable("count risk areas", err)
	}

	if st.SchemaVersion, err = SchemaVersion(ctx, s.db); err != nil {
		return nil, unavailable("read schema version", err)
	}
	return st, nil
}

func (s *IntentStore) countInto(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
