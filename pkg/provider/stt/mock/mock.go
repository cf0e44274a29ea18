// Package mock provides a test double for the stt package interfaces.
//
// Pre-populate Responses (or Text) with what successive Recognize calls
// should return, then inspect Calls to verify what audio was delivered.
// Set Hold to make calls block until released, which lets tests drive the
// cancellation of in-flight recognitions deterministically.
package mock

import (
	"context"
	"sync"

	"github.com/taiwalabs/taiwa/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	// PCM is a copy of the audio passed to Recognize.
	PCM []byte
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Responses are returned by successive calls, in order.
	Responses []string

	// Text is returned once Responses is exhausted (or when it is empty).
	Text string

	// Err, if non-nil, is returned by every call.
	Err error

	// Hold, if non-nil, blocks each call until the channel is closed or the
	// call's context ends.
	Hold chan struct{}

	// Calls records every invocation in order.
	Calls []RecognizeCall

	next int
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognize records the call, optionally blocks on Hold, and returns the
// next scripted response. A context cancelled before release wins over the
// scripted response.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte) (string, error) {
	r.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	r.Calls = append(r.Calls, RecognizeCall{PCM: cp})
	text := r.Text
	if r.next < len(r.Responses) {
		text = r.Responses[r.next]
		r.next++
	}
	hold := r.Hold
	err := r.Err
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
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return text, nil
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Reset clears recorded calls and restarts the response script. Thread-safe.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = nil
	r.next = 0
}
