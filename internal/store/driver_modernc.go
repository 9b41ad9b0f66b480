//go:build !(sqlite_vec && cgo)

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"

	sqlite "modernc.org/sqlite"
)

// driverName is the database/sql driver used for the intent store.
const driverName = "sqlite"

func init() {
	// Same name and semantics as the sqlite-vec function so queries are
	// identical across builds.
	sqlite.MustRegisterDeterministicScalarFunction("vec_distance_cosine", 2, vecDistanceCosine)
}

// vecDistanceCosine returns 1 - cos(a, b). Zero vectors yield NULL.
func vecDistanceCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, err := blobArg(args[0])
	if err != nil {
		return nil, err
	}
	b, err := blobArg(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vec_distance_cosine: dimension mismatch %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return nil, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

func blobArg(v driver.Value) ([]float32, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("vec_distance_cosine: expected blob, got %T", v)
	}
	return decodeVector(b)
}

func serializeVector(v []float32) ([]byte, error) {
	return encodeVector(v), nil
}

func vectorBackend(_ context.Context, _ *sql.DB) string {
	return "modernc"
}
