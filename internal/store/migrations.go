package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"qanerd/internal/logging"
)

// Schema versions:
// v1: intents table with embedding blob, intent_risks join table
// v2: embedding provenance (engine, dims) for stale-embedding detection
// v3: risk lookup index
const CurrentSchemaVersion = 3

// MigrationResult holds the result of a migration operation.
type MigrationResult struct {
	FromVersion   int
	ToVersion     int
	MigrationsRun int
	Duration      time.Duration
}

// migration is a single schema step applied inside one transaction.
type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{
		version:     1,
		description: "create intents",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS intents (
				id TEXT PRIMARY KEY,
				summary TEXT NOT NULL,
				feature TEXT NOT NULL DEFAULT '',
				automation_status TEXT NOT NULL DEFAULT 'unknown',
				source_ref TEXT NOT NULL DEFAULT '',
				extensions TEXT NOT NULL DEFAULT '',
				embedding BLOB NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`,
			`CREATE INDEX IF NOT EXISTS idx_intents_feature ON intents(feature)`,
			`CREATE TABLE IF NOT EXISTS intent_risks (
				intent_id TEXT NOT NULL,
				risk TEXT NOT NULL,
				PRIMARY KEY (intent_id, risk)
			)`,
		},
	},
	{
		version:     2,
		description: "embedding provenance",
		statements: []string{
			`ALTER TABLE intents ADD COLUMN engine TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE intents ADD COLUMN dims INTEGER NOT NULL DEFAULT 0`,
		},
	},
	{
		version:     3,
		description: "risk lookup index",
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_intent_risks_risk ON intent_risks(risk)`,
		},
	},
}

// SchemaVersion returns the applied schema version, 0 for a fresh database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// RunMigrations applies every migration newer than the database's version.
func RunMigrations(ctx context.Context, db *sql.DB) (*MigrationResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	start := time.Now()
	from, err := SchemaVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	if from > CurrentSchemaVersion {
		return nil, fmt.Errorf("database schema v%d is newer than supported v%d", from, CurrentSchemaVersion)
	}

	result := &MigrationResult{FromVersion: from, ToVersion: from}
	for _, m := range migrations {
		if m.version <= from {
			continue
		}
		logging.StoreDebug("Applying migration v%d: %s", m.version, m.description)
		if err := applyMigration(ctx, db, m); err != nil {
			return result, err
		}
		result.ToVersion = m.version
		result.MigrationsRun++
	}
	result.Duration = time.Since(start)

	if result.MigrationsRun > 0 {
		logging.Store("Schema migrated v%d -> v%d (%d migrations)", result.FromVersion, result.ToVersion, result.MigrationsRun)
	}
	return result, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration v%d: failed to begin: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.version, m.description, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
		return fmt.Errorf("migration v%d: failed to record version: %w", m.version, err)
	}
	return tx.Commit()
}
