// Package store persists manual-test intents and their embeddings in SQLite
// and answers similarity queries against them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"qanerd/internal/embedding"
	"qanerd/internal/intent"
	"qanerd/internal/logging"
)

// IntentStore is the semantic intent store. One instance owns one database
// handle and is passed explicitly to the components that need it.
//
// Usage:
//
//	st, _ := store.Open(".qanerd/intents.db", engine)
//	defer st.Close()
//	_ = st.Upsert(ctx, intent.ManualTestIntent{ID: "login-invalid-password", Summary: "..."})
//	hits, _ := st.Query(ctx, "login fails with wrong password", 3)
type IntentStore struct {
	db      *sql.DB
	mu      sync.RWMutex
	path    string
	engine  embedding.EmbeddingEngine
	backend string
	timeout time.Duration
	closed  atomic.Bool
}

// Option configures an IntentStore.
type Option func(*IntentStore)

// WithQueryTimeout bounds every Query and UpsertBatch call, embedding
// included. Exceeding it is a store-unavailable error. Zero means no bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *IntentStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Open opens (creating if needed) the store at path. ":memory:" opens a
// private in-memory database.
func Open(path string, engine embedding.EmbeddingEngine, opts ...Option) (*IntentStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if engine == nil {
		return nil, intent.NewValidationError("intent store requires an embedding engine")
	}
	if path == "" {
		return nil, intent.NewValidationError("intent store requires a database path")
	}

	logging.Store("Opening intent store at %s (driver=%s)", path, driverName)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, intent.NewStoreUnavailableError("failed to open database", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
		}
	}

	if _, err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, intent.NewStoreUnavailableError("failed to migrate schema", err)
	}

	s := &IntentStore{
		db:      db,
		path:    path,
		engine:  engine,
		backend: vectorBackend(ctx, db),
	}
	for _, opt := range opts {
		opt(s)
	}
	logging.Store("Intent store ready (backend=%s, engine=%s)", s.backend, engine.Name())
	return s, nil
}

// Close closes the database. Later operations fail with a store-unavailable
// error.
func (s *IntentStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	logging.Store("Closing intent store at %s", s.path)
	return s.db.Close()
}

// Engine returns the embedding engine the store embeds with.
func (s *IntentStore) Engine() embedding.EmbeddingEngine {
	return s.engine
}

// Backend describes the vector scoring backend.
func (s *IntentStore) Backend() string {
	return s.backend
}

func (s *IntentStore) checkOpen() error {
	if s.closed.Load() {
		return intent.NewStoreUnavailableError("intent store is closed", nil)
	}
	return nil
}

// withTimeout applies the configured operation timeout to ctx.
func (s *IntentStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// timedOut replaces err with a store-unavailable timeout error when the
// operation's own deadline expired.
func (s *IntentStore) timedOut(ctx context.Context, op string, err error) error {
	if err == nil || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	logging.StoreError("%s timed out after %v", op, s.timeout)
	return intent.NewStoreUnavailableError(fmt.Sprintf("%s timed out after %v", op, s.timeout), context.DeadlineExceeded)
}

// HealthCheck verifies the database answers and, when the engine supports
// it, that the embedding service is reachable.
func (s *IntentStore) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping database", err)
	}
	if hc, ok := s.engine.(embedding.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			logging.StoreError("Embedding engine %s unhealthy: %v", s.engine.Name(), err)
			return intent.NewStoreUnavailableError("embedding engine unreachable", err)
		}
	}
	return nil
}

// unavailable logs a database failure and wraps it as a store-unavailable error.
func unavailable(op string, err error) error {
	logging.StoreError("%s failed: %v", op, err)
	return intent.NewStoreUnavailableError(op+" failed", err)
}

// embedDocument embeds an intent summary for storage.
func (s *IntentStore) embedDocument(ctx context.Context, text string) ([]byte, int, error) {
	vec, err := embedding.EmbedFor(ctx, s.engine, text, embedding.PurposeDocument)
	if err != nil {
		return nil, 0, intent.NewStoreUnavailableError("embedding engine unavailable", err)
	}
	blob, err := serializeVector(vec)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to serialize embedding: %w", err)
	}
	return blob, len(vec), nil
}
