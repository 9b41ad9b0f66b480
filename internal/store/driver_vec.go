//go:build sqlite_vec && cgo

package store

import (
	"context"
	"database/sql"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// driverName is the database/sql driver used for the intent store.
const driverName = "sqlite3"

func init() {
	// Every new mattn/go-sqlite3 connection loads sqlite-vec.
	vec.Auto()
}

func serializeVector(v []float32) ([]byte, error) {
	return vec.SerializeFloat32(v)
}

func vectorBackend(ctx context.Context, db *sql.DB) string {
	var version string
	if err := db.QueryRowContext(ctx, `SELECT vec_version()`).Scan(&version); err != nil {
		return "sqlite-vec (unavailable)"
	}
	return "sqlite-vec " + version
}
