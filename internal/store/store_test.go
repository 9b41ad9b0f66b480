package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qanerd/internal/embedding"
	"qanerd/internal/intent"
)

func loginIntent() intent.ManualTestIntent {
	return intent.ManualTestIntent{
		ID:               "login-invalid-password",
		Summary:          "Invalid login attempts should be rejected with clear error messaging.",
		Feature:          "Authentication",
		RiskAreas:        []string{"validation", "security"},
		AutomationStatus: intent.StatusAutomated,
		SourceRef:        "manual-tests/login.md",
		Extensions:       map[string]string{"owner": "qa-web"},
	}
}

func cartIntent() intent.ManualTestIntent {
	return intent.ManualTestIntent{
		ID:               "cart-add-item",
		Summary:          "Adding an item updates the cart badge count.",
		Feature:          "Cart",
		RiskAreas:        []string{"performance"},
		AutomationStatus: intent.StatusManual,
	}
}

func newHashStore(t *testing.T) *IntentStore {
	t.Helper()
	s, err := Open(":memory:", embedding.NewHashEngine(256))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(":memory:", nil)
	assert.True(t, errors.Is(err, intent.ErrValidation))

	_, err = Open("", embedding.NewHashEngine(8))
	assert.True(t, errors.Is(err, intent.ErrValidation))
}

func TestOpen_CreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "intents.db")
	s, err := Open(path, embedding.NewHashEngine(64))
	require.NoError(t, err)

	v, err := SchemaVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
	require.NoError(t, s.Close())

	// Reopening an up-to-date database runs no migrations and keeps data.
	s, err = Open(path, embedding.NewHashEngine(64))
	require.NoError(t, err)
	defer s.Close()
	res, err := RunMigrations(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, 0, res.MigrationsRun)
}

func TestUpsertAndGet(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, loginIntent()))

	got, err := s.Get(ctx, "login-invalid-password")
	require.NoError(t, err)
	assert.Equal(t, "Authentication", got.Feature)
	assert.Equal(t, []string{"security", "validation"}, got.RiskAreas)
	assert.Equal(t, intent.StatusAutomated, got.AutomationStatus)
	assert.Equal(t, map[string]string{"owner": "qa-web"}, got.Extensions)
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, loginIntent()))
	updated := loginIntent()
	updated.Summary = "Locked accounts cannot log in."
	updated.RiskAreas = []string{"security"}
	require.NoError(t, s.Upsert(ctx, updated))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Locked accounts cannot log in.", all[0].Summary)
	assert.Equal(t, []string{"security"}, all[0].RiskAreas)
}

func TestUpsert_EmptyIDLeavesStoreUnchanged(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, cartIntent()))

	bad := loginIntent()
	bad.ID = "  "
	err := s.Upsert(ctx, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, intent.ErrValidation))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "cart-add-item", all[0].ID)
}

func TestUpsert_EmptySummaryRejected(t *testing.T) {
	s := newHashStore(t)
	bad := loginIntent()
	bad.Summary = ""
	assert.True(t, errors.Is(s.Upsert(context.Background(), bad), intent.ErrValidation))
}

func TestUpsertBatch_InvalidIntentRejectsBatch(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()

	bad := cartIntent()
	bad.ID = ""
	_, err := s.UpsertBatch(ctx, []intent.ManualTestIntent{loginIntent(), bad})
	require.Error(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpsert_EmbeddingFailureIsUnavailable(t *testing.T) {
	engine := &MockEmbeddingEngine{
		EmbedFunc: func(context.Context, string) ([]float32, error) {
			return nil, errors.New("connection refused")
		},
	}
	s, err := Open(":memory:", engine)
	require.NoError(t, err)
	defer s.Close()

	err = s.Upsert(context.Background(), loginIntent())
	assert.True(t, errors.Is(err, intent.ErrStoreUnavailable))
}

func TestQuery_ExactSummaryRanksFirst(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()
	_, err := s.UpsertBatch(ctx, []intent.ManualTestIntent{loginIntent(), cartIntent()})
	require.NoError(t, err)

	hits, err := s.Query(ctx, loginIntent().Summary, 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "login-invalid-password", hits[0].Intent.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, []string{"security", "validation"}, hits[0].Intent.RiskAreas)
}

func TestQuery_LimitOrderingAndTies(t *testing.T) {
	engine := lookupEngine(map[string][]float32{
		"a":     {1, 0, 0},
		"b":     {1, 0, 0},
		"c":     {0.6, 0.8, 0},
		"d":     {-1, 0, 0},
		"query": {1, 0, 0},
	})
	s, err := Open(":memory:", engine)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	for _, id := range []string{"d", "c", "b", "a"} {
		require.NoError(t, s.Upsert(ctx, intent.ManualTestIntent{ID: id, Summary: id}))
	}

	hits, err := s.Query(ctx, "query", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].Intent.ID)
	assert.Equal(t, "b", hits[1].Intent.ID)
	assert.Equal(t, "c", hits[2].Intent.ID)
	assert.InDelta(t, 0.6, hits[2].Score, 1e-6)

	all, err := s.Query(ctx, "query", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Opposite vectors clamp to zero rather than going negative.
	assert.Equal(t, 0.0, all[3].Score)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
}

func TestQuery_NonPositiveK(t *testing.T) {
	s := newHashStore(t)
	require.NoError(t, s.Upsert(context.Background(), loginIntent()))
	hits, err := s.Query(context.Background(), "login", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQuery_EmptyStoreAndEmptyText(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()

	hits, err := s.Query(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Upsert(ctx, loginIntent()))
	hits, err = s.Query(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0.0, hits[0].Score)
}

func TestQuery_ClosedStoreIsUnavailable(t *testing.T) {
	s, err := Open(":memory:", embedding.NewHashEngine(32))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Query(context.Background(), "login", 3)
	assert.True(t, errors.Is(err, intent.ErrStoreUnavailable))
	assert.True(t, errors.Is(s.Upsert(context.Background(), loginIntent()), intent.ErrStoreUnavailable))
}

func TestQuery_EngineUnreachableIsUnavailable(t *testing.T) {
	fail := false
	engine := &MockEmbeddingEngine{
		EmbedFunc: func(context.Context, string) ([]float32, error) {
			if fail {
				return nil, errors.New("dial tcp: connection refused")
			}
			return []float32{1, 0, 0, 0}, nil
		},
	}
	s, err := Open(":memory:", engine)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Upsert(context.Background(), loginIntent()))

	fail = true
	_, err = s.Query(context.Background(), "login", 3)
	assert.True(t, errors.Is(err, intent.ErrStoreUnavailable))
}

func TestDelete(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, loginIntent()))

	require.NoError(t, s.Delete(ctx, "login-invalid-password"))
	_, err := s.Get(ctx, "login-invalid-password")
	assert.True(t, errors.Is(err, intent.ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "login-invalid-password"), intent.ErrNotFound))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.RiskAreas)
}

func TestFeaturesAndStats(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()
	noFeature := intent.ManualTestIntent{ID: "misc", Summary: "Footer links open"}
	_, err := s.UpsertBatch(ctx, []intent.ManualTestIntent{loginIntent(), cartIntent(), noFeature})
	require.NoError(t, err)

	features, err := s.Features(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Authentication", "Cart"}, features)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Intents)
	assert.Equal(t, 2, st.Features)
	assert.Equal(t, map[string]int{"security": 1, "validation": 1, "performance": 1}, st.RiskAreas)
	assert.Equal(t, map[string]int{"automated": 1, "manual": 1, "unknown": 1}, st.ByStatus)
	assert.Equal(t, 0, st.StaleEmbeddings)
	assert.Equal(t, CurrentSchemaVersion, st.SchemaVersion)
	assert.Equal(t, "hash:256", st.Engine)
}

func TestReembed_AfterEngineChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.db")
	ctx := context.Background()

	s, err := Open(path, embedding.NewHashEngine(64))
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, loginIntent()))
	require.NoError(t, s.Close())

	s, err = Open(path, embedding.NewHashEngine(128))
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.StaleEmbeddings)

	_, err = s.Query(ctx, "login", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reembed")

	n, err := s.Reembed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := s.Query(ctx, loginIntent().Summary, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "login-invalid-password", hits[0].Intent.ID)
}

func TestConcurrentUpsertAndQuery(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, loginIntent()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Upsert(ctx, loginIntent()))
		}()
		go func() {
			defer wg.Done()
			hits, err := s.Query(ctx, "invalid login", 3)
			assert.NoError(t, err)
			for _, h := range hits {
				assert.NotEmpty(t, h.Intent.Summary)
			}
		}()
	}
	wg.Wait()
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{1, -0.5, 0.25}
	b := encodeVector(v)
	assert.Len(t, b, 12)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, b[:4])

	back, err := decodeVector(b)
	require.NoError(t, err)
	assert.Equal(t, v, back)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestQuery_HugeKIsBoundedByRows(t *testing.T) {
	s := newHashStore(t)
	ctx := context.Background()
	_, err := s.UpsertBatch(ctx, []intent.ManualTestIntent{loginIntent(), cartIntent()})
	require.NoError(t, err)

	hits, err := s.Query(ctx, "login", math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func blockingEngine() *MockEmbeddingEngine {
	return &MockEmbeddingEngine{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			if text == "slow" || strings.HasPrefix(text, "slow ") {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return []float32{1, 0, 0, 0}, nil
		},
	}
}

func TestQueryTimeout_IsUnavailable(t *testing.T) {
	s, err := Open(":memory:", blockingEngine(), WithQueryTimeout(20*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, loginIntent()))

	start := time.Now()
	_, err = s.Query(ctx, "slow", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, intent.ErrStoreUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)

	slow := loginIntent()
	slow.ID = "slow-intent"
	slow.Summary = "slow summary"
	err = s.Upsert(ctx, slow)
	assert.True(t, errors.Is(err, intent.ErrStoreUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	_, err = s.Get(ctx, "slow-intent")
	assert.True(t, errors.Is(err, intent.ErrNotFound), "a timed-out upsert writes nothing")

	// Validation errors are reported as such even with a timeout set.
	err = s.Upsert(ctx, intent.ManualTestIntent{Summary: "x"})
	assert.True(t, errors.Is(err, intent.ErrValidation))
}

func TestQueryTimeout_CallerCancellationPassesThrough(t *testing.T) {
	s, err := Open(":memory:", blockingEngine())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Query(ctx, "slow", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHealthCheck(t *testing.T) {
	var down atomic.Bool
	engine := &MockEmbeddingEngine{
		HealthCheckFunc: func(context.Context) error {
			if down.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
	}
	s, err := Open(":memory:", engine)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.HealthCheck(ctx))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.EngineError)

	down.Store(true)
	err = s.HealthCheck(ctx)
	assert.True(t, errors.Is(err, intent.ErrStoreUnavailable))
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Contains(t, st.EngineError, "connection refused")

	require.NoError(t, s.Close())
	assert.True(t, errors.Is(s.HealthCheck(ctx), intent.ErrStoreUnavailable))
}
