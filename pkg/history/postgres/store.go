// Package postgres provides a PostgreSQL-backed history store with semantic
// recall via pgvector.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS. When an
// embedder is configured, every appended exchange gets a vector computed from
// its user text, and [Store.Similar] searches those vectors by cosine
// distance over an HNSW index. Without an embedder the store is a plain
// archive: rows land without vectors and Similar comes back empty.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn, postgres.WithEmbedder(emb))
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Append(ctx, ex)
//	similar, _ := store.Similar(ctx, "犬を飼っています", 3)
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/taiwalabs/taiwa/pkg/history"
	"github.com/taiwalabs/taiwa/pkg/provider/embeddings"
)

// DefaultDimensions is the embedding column width used when no embedder or
// explicit dimension is configured. It matches OpenAI text-embedding-3-small.
const DefaultDimensions = 1536

// Ensure Store implements history.Store at compile time.
var _ history.Store = (*Store)(nil)

// Store is a PostgreSQL-backed history.Store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool       *pgxpool.Pool
	embedder   embeddings.Embedder
	dimensions int
}

// Option is a functional option for Store.
type Option func(*Store)

// WithEmbedder enables semantic recall. Appended exchanges are embedded from
// their user text and Similar searches by cosine distance. The embedding
// column width follows the embedder's Dimensions unless overridden with
// WithDimensions.
func WithEmbedder(e embeddings.Embedder) Option {
	return func(s *Store) {
		s.embedder = e
	}
}

// WithDimensions overrides the embedding column width. Changing the value
// after the first migration requires a manual schema change.
func WithDimensions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.dimensions = n
		}
	}
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the exchanges table and its indexes exist.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		o(s)
	}
	if s.dimensions == 0 {
		s.dimensions = DefaultDimensions
		if s.embedder != nil {
			if d := s.embedder.Dimensions(); d > 0 {
				s.dimensions = d
			}
		}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history postgres: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool, s.dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: migrate: %w", err)
	}

	s.pool = pool
	return s, nil
}

// ddlExchanges returns the schema DDL with the embedding dimension
// substituted. The vector width is baked into the column type at creation.
func ddlExchanges(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS exchanges (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    user_text   TEXT         NOT NULL,
    coach_text  TEXT         NOT NULL,
    embedding   vector(%d),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session_created
    ON exchanges (session_id, created_at);

CREATE INDEX IF NOT EXISTS idx_exchanges_embedding
    ON exchanges USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate creates or ensures the exchanges table, its recency index, and the
// HNSW cosine index exist. It is idempotent and safe to call on every start.
//
// dimensions must match the embedding model configured for the deployment
// (e.g., 1536 for text-embedding-3-small, 768 for nomic-embed-text).
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if _, err := pool.Exec(ctx, ddlExchanges(dimensions)); err != nil {
		return fmt.Errorf("history postgres: migrate: %w", err)
	}
	return nil
}

// Append implements history.Store. When an embedder is configured, the user
// text is embedded first; an embedding failure is not fatal: the row still
// lands without a vector and is simply invisible to Similar.
func (s *Store) Append(ctx context.Context, ex history.Exchange) error {
	if ex.At.IsZero() {
		ex.At = time.Now()
	}

	var vec any
	if s.embedder != nil {
		if v, err := s.embedder.Embed(ctx, ex.UserText); err == nil && len(v) == s.dimensions {
			vec = pgvector.NewVector(v)
		}
	}

	const q = `
		INSERT INTO exchanges (session_id, user_text, coach_text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q, ex.SessionID, ex.UserText, ex.CoachText, vec, ex.At)
	if err != nil {
		return fmt.Errorf("history postgres: append: %w", err)
	}
	return nil
}

// Recent implements history.Store. It returns up to n of the session's most
// recent exchanges, oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]history.Exchange, error) {
	const q = `
		SELECT id, session_id, user_text, coach_text, created_at
		FROM   exchanges
		WHERE  session_id = $1
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("history postgres: recent: %w", err)
	}
	out, err := collectExchanges(rows)
	if err != nil {
		return nil, err
	}
	// The query walks newest-first so LIMIT picks the right rows; flip back
	// to prompt order.
	reverse(out)
	return out, nil
}

// Similar implements history.Store. It embeds text and returns up to k
// exchanges whose stored vectors are closest by cosine distance, most
// similar first. Without an embedder it returns an empty slice.
func (s *Store) Similar(ctx context.Context, text string, k int) ([]history.Exchange, error) {
	if s.embedder == nil {
		return []history.Exchange{}, nil
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("history postgres: embed query: %w", err)
	}

	const q = `
		SELECT id, session_id, user_text, coach_text, created_at
		FROM   exchanges
		WHERE  embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(queryVec), k)
	if err != nil {
		return nil, fmt.Errorf("history postgres: similar: %w", err)
	}
	return collectExchanges(rows)
}

// Close implements history.Store. It releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// collectExchanges scans pgx rows into a slice of Exchange values.
func collectExchanges(rows pgx.Rows) ([]history.Exchange, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Exchange, error) {
		var ex history.Exchange
		if err := row.Scan(&ex.ID, &ex.SessionID, &ex.UserText, &ex.CoachText, &ex.At); err != nil {
			return history.Exchange{}, err
		}
		return ex, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history postgres: scan rows: %w", err)
	}
	if out == nil {
		out = []history.Exchange{}
	}
	return out, nil
}

func reverse(s []history.Exchange) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
