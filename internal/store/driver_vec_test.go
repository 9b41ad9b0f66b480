//go:build sqlite_vec && cgo

package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqliteVecBackend(t *testing.T) {
	s := newHashStore(t)
	assert.True(t, strings.HasPrefix(s.Backend(), "sqlite-vec v"), s.Backend())

	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, loginIntent()))
	require.NoError(t, s.Upsert(ctx, cartIntent()))

	results, err := s.Query(ctx, loginIntent().Summary, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "login-invalid-password", results[0].Intent.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestSerializeVectorMatchesEncoding(t *testing.T) {
	v := []float32{0.25, -1, 3.5}
	b, err := serializeVector(v)
	require.NoError(t, err)
	assert.Equal(t, encodeVector(v), b)
}
