// Package mock provides a test double for the llm.Responder interface.
//
// Use Responder in unit tests to feed scripted replies without a live model
// backend and to inspect what the session sent. All fields are safe to set
// before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
//
// Example:
//
//	r := &mock.Responder{Reply: "いいですね。続けましょう。"}
//	text, err := r.Respond(ctx, "こんにちは", nil)
package mock

import (
	"context"
	"sync"

	"github.com/taiwalabs/taiwa/pkg/provider/llm"
)

// RespondCall records a single invocation of Respond.
type RespondCall struct {
	// UserText is the recognized text passed to Respond.
	UserText string
	// History is a copy of the exchange history passed to Respond.
	History []llm.Exchange
}

// Responder is a scripted implementation of llm.Responder.
// Zero value returns empty replies and nil errors.
type Responder struct {
	mu sync.Mutex

	// Replies are returned one per call, in order. Once exhausted, Reply is
	// returned instead.
	Replies []string

	// Reply is returned when Replies is empty or used up.
	Reply string

	// Err, if non-nil, is returned by Respond after the call is recorded.
	Err error

	// Hold, when non-nil, blocks Respond until the channel is closed or the
	// context is cancelled. Lets tests exercise timeout and teardown paths.
	Hold chan struct{}

	// Calls records every invocation of Respond in order.
	Calls []RespondCall

	next int
}

// Respond records the call and returns the next scripted reply.
func (r *Responder) Respond(ctx context.Context, userText string, history []llm.Exchange) (string, error) {
	r.mu.Lock()
	hist := make([]llm.Exchange, len(history))
	copy(hist, history)
	r.Calls = append(r.Calls, RespondCall{UserText: userText, History: hist})

	reply := r.Reply
	if r.next < len(r.Replies) {
		reply = r.Replies[r.next]
		r.next++
	}
	err := r.Err
	hold := r.Hold
	r.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return reply, nil
}

// CallCount returns how many times Respond was invoked.
func (r *Responder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Reset clears recorded calls and rewinds the scripted replies.
func (r *Responder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
	r.next = 0
}

// Ensure Responder implements llm.Responder at compile time.
var _ llm.Responder = (*Responder)(nil)
