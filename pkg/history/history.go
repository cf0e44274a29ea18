// Package history stores completed conversation exchanges.
//
// Every finished turn (what the learner said and what the coach answered)
// becomes one [Exchange]. A [Store] keeps those exchanges so later turns can
// carry context: the most recent few feed the prompt verbatim, and stores
// with semantic recall can surface older exchanges that are close in meaning
// to what the learner just said.
//
// Two implementations ship with the repo: memstore (bounded in-memory window
// per session, no recall) and postgres (pgx + pgvector archive with cosine
// recall).
package history

import (
	"context"
	"time"
)

// Exchange is one completed conversation turn.
type Exchange struct {
	// ID is assigned by the store on append. Zero before the exchange has
	// been stored.
	ID int64
	// SessionID names the session the exchange belongs to.
	SessionID string
	// UserText is the recognized learner utterance.
	UserText string
	// CoachText is the reply that was spoken back.
	CoachText string
	// At is when the exchange completed.
	At time.Time
}

// Store archives exchanges and recalls context for later turns.
//
// Implementations must be safe for concurrent use and must stamp a zero
// Exchange.At with the current time on append.
type Store interface {
	// Append records one completed exchange.
	Append(ctx context.Context, ex Exchange) error

	// Recent returns up to n of the session's most recent exchanges,
	// oldest first, the order a prompt wants them in.
	Recent(ctx context.Context, sessionID string, n int) ([]Exchange, error)

	// Similar returns up to k past exchanges whose user text is closest in
	// meaning to text, most similar first. The search spans all sessions.
	// Stores without semantic recall return an empty slice and no error.
	Similar(ctx context.Context, text string, k int) ([]Exchange, error)

	// Close releases any resources held by the store.
	Close() error
}
