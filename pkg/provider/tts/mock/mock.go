// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to return controlled audio and phoneme timing and to verify
// the text and speaker each call received.
//
// Example:
//
//	s := &mock.Synthesizer{
//	    Result: tts.Result{Audio: pcm, SampleRate: 24000},
//	}
//	res, _ := s.Synthesize(ctx, "こんにちは", 1)
package mock

import (
	"context"
	"sync"

	"github.com/taiwalabs/taiwa/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Speaker is the speaker passed to Synthesize.
	Speaker int
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Results is the sequence of results returned by successive calls, in
	// order. Calls beyond the end of the sequence fall back to Result.
	Results []tts.Result

	// Result is returned when Results does not cover the call.
	Result tts.Result

	// Err, if non-nil, is returned instead of a result.
	Err error

	// Hold, when non-nil, blocks each call until the channel is closed or
	// the context is cancelled, whichever comes first.
	Hold chan struct{}

	// --- Call records ---

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall

	next int
}

// Synthesize records the call and returns the scripted result or error.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, speaker int) (tts.Result, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, SynthesizeCall{Text: text, Speaker: speaker})
	res := s.Result
	if s.next < len(s.Results) {
		res = s.Results[s.next]
		s.next++
	}
	err := s.Err
	hold := s.Hold
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return tts.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return tts.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return tts.Result{}, err
	}
	return res, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// Reset clears all recorded calls and the scripted-result cursor. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
	s.next = 0
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
