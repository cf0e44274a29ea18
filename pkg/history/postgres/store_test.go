package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/taiwalabs/taiwa/pkg/history"
	"github.com/taiwalabs/taiwa/pkg/history/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if TAIWA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TAIWA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TAIWA_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// mustPool opens a bare pgxpool with pgvector types registered, used to reset
// the schema between tests.
func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	return pool
}

func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS exchanges CASCADE`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
}

// newTestStore creates a fresh [postgres.Store] on a clean schema. It calls
// t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T, opts ...postgres.Option) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	opts = append([]postgres.Option{postgres.WithDimensions(testEmbeddingDim)}, opts...)
	store, err := postgres.New(ctx, dsn, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// vecEmbedder maps each known text to a fixed vector, so cosine distances in
// the tests are fully deterministic.
type vecEmbedder struct {
	vecs map[string][]float32
}

func (e *vecEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	return nil, errors.New("vecEmbedder: unknown text " + text)
}

func (e *vecEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		v, err := e.Embed(ctx, txt)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *vecEmbedder) Dimensions() int { return testEmbeddingDim }
func (e *vecEmbedder) ModelID() string { return "test-embed" }

// failEmbedder always errors, to exercise the best-effort append path.
type failEmbedder struct{}

func (failEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embed backend down")
}
func (failEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embed backend down")
}
func (failEmbedder) Dimensions() int { return testEmbeddingDim }
func (failEmbedder) ModelID() string { return "fail-embed" }

func TestAppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, ex := range []history.Exchange{
		{SessionID: "a", UserText: "おはよう", CoachText: "おはようございます"},
		{SessionID: "a", UserText: "調子はどう", CoachText: "元気ですよ"},
		{SessionID: "b", UserText: "こんばんは", CoachText: "こんばんは"},
	} {
		ex.At = base.Add(time.Duration(i) * time.Minute)
		if err := store.Append(ctx, ex); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	got, err := store.Recent(ctx, "a", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d exchanges, want 2", len(got))
	}
	if got[0].UserText != "おはよう" || got[1].UserText != "調子はどう" {
		t.Errorf("Recent order = [%q, %q], want oldest first", got[0].UserText, got[1].UserText)
	}
	if got[0].ID == 0 {
		t.Error("expected assigned ID, got 0")
	}
	if !got[0].At.Equal(base) {
		t.Errorf("At = %v, want %v", got[0].At, base)
	}

	// Limit picks the newest rows.
	got, err = store.Recent(ctx, "a", 1)
	if err != nil {
		t.Fatalf("Recent limit 1: %v", err)
	}
	if len(got) != 1 || got[0].UserText != "調子はどう" {
		t.Errorf("Recent limit 1 = %+v, want the newest exchange", got)
	}
}

func TestRecent_EmptySession(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Recent(context.Background(), "missing", 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if got == nil {
		t.Fatal("Recent returned nil, want empty slice")
	}
	if len(got) != 0 {
		t.Errorf("Recent returned %d exchanges, want 0", len(got))
	}
}

func TestSimilar(t *testing.T) {
	emb := &vecEmbedder{vecs: map[string][]float32{
		"犬が好きです":    {1, 0, 0, 0},
		"天気がいいですね":  {0, 1, 0, 0},
		"お腹が空きました":  {0, 0, 1, 0},
		"犬を飼っています":  {0.9, 0.1, 0, 0},
	}}
	store := newTestStore(t, postgres.WithEmbedder(emb))
	ctx := context.Background()

	for _, text := range []string{"犬が好きです", "天気がいいですね", "お腹が空きました"} {
		err := store.Append(ctx, history.Exchange{
			SessionID: "a", UserText: text, CoachText: "そうですか",
		})
		if err != nil {
			t.Fatalf("Append(%q): %v", text, err)
		}
	}

	got, err := store.Similar(ctx, "犬を飼っています", 2)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Similar returned %d exchanges, want 2", len(got))
	}
	if got[0].UserText != "犬が好きです" {
		t.Errorf("most similar = %q, want 犬が好きです", got[0].UserText)
	}
}

func TestSimilar_WithoutEmbedder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Append(ctx, history.Exchange{SessionID: "a", UserText: "こんにちは"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Similar(ctx, "こんにちは", 3)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Similar returned %d exchanges without an embedder, want 0", len(got))
	}
}

// TestAppend_EmbedFailureStillLands verifies the best-effort contract: a
// failing embed backend must not lose the exchange, and the vectorless row
// stays invisible to Similar.
func TestAppend_EmbedFailureStillLands(t *testing.T) {
	failing := newTestStore(t, postgres.WithEmbedder(failEmbedder{}))
	ctx := context.Background()

	err := failing.Append(ctx, history.Exchange{
		SessionID: "a", UserText: "犬が好きです", CoachText: "いいですね",
	})
	if err != nil {
		t.Fatalf("Append with failing embedder: %v", err)
	}

	got, err := failing.Recent(ctx, "a", 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent returned %d exchanges, want 1", len(got))
	}

	// A second store with a working embedder searches the same table; the
	// vectorless row must not match.
	emb := &vecEmbedder{vecs: map[string][]float32{
		"犬を飼っています": {0.9, 0.1, 0, 0},
	}}
	searching, err := postgres.New(ctx, testDSN(t),
		postgres.WithDimensions(testEmbeddingDim), postgres.WithEmbedder(emb))
	if err != nil {
		t.Fatalf("New searching store: %v", err)
	}
	t.Cleanup(func() { _ = searching.Close() })

	similar, err := searching.Similar(ctx, "犬を飼っています", 5)
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(similar) != 0 {
		t.Errorf("Similar returned %d vectorless rows, want 0", len(similar))
	}
}

// TestMigrate_Idempotent verifies that opening the store against an existing
// schema succeeds.
func TestMigrate_Idempotent(t *testing.T) {
	_ = newTestStore(t)

	second, err := postgres.New(context.Background(), testDSN(t),
		postgres.WithDimensions(testEmbeddingDim))
	if err != nil {
		t.Fatalf("New on migrated schema: %v", err)
	}
	_ = second.Close()
}
