// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that classifiers are created with the expected Config.
// Use Classifier to script per-frame speech decisions and inspect the frames
// that were submitted for scoring.
//
// Example:
//
//	cls := &mock.Classifier{Responses: []bool{false, true, true}}
//	eng := &mock.Engine{Classifier: cls}
//	c, _ := eng.NewClassifier(cfg)
package mock

import (
	"sync"

	"github.com/taiwalabs/taiwa/pkg/provider/vad"
)

// NewClassifierCall records a single invocation of Engine.NewClassifier.
type NewClassifierCall struct {
	// Cfg is the Config passed to NewClassifier.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Classifier is returned by NewClassifier. If nil, NewClassifier returns
	// a new default Classifier.
	Classifier vad.Classifier

	// NewClassifierErr, if non-nil, is returned as the error from NewClassifier.
	NewClassifierErr error

	// NewClassifierCalls records every call to NewClassifier in order.
	NewClassifierCalls []NewClassifierCall
}

// NewClassifier records the call and returns Classifier, NewClassifierErr.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewClassifierCalls = append(e.NewClassifierCalls, NewClassifierCall{Cfg: cfg})
	if e.NewClassifierErr != nil {
		return nil, e.NewClassifierErr
	}
	if e.Classifier != nil {
		return e.Classifier, nil
	}
	return &Classifier{}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewClassifierCalls = nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Classifier is a mock implementation of vad.Classifier that plays back a
// scripted sequence of decisions.
type Classifier struct {
	mu sync.Mutex

	// Responses is consumed one entry per IsSpeech call, in order.
	Responses []bool

	// Default is returned once Responses is exhausted.
	Default bool

	// IsSpeechErr, if non-nil, is returned by every IsSpeech call.
	IsSpeechErr error

	// --- Call records ---

	// IsSpeechCallCount is the number of times IsSpeech was called.
	IsSpeechCallCount int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	next int
}

// IsSpeech records the call and returns the next scripted decision.
func (c *Classifier) IsSpeech(_ []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.IsSpeechCallCount++
	if c.IsSpeechErr != nil {
		return false, c.IsSpeechErr
	}
	if c.next < len(c.Responses) {
		r := c.Responses[c.next]
		c.next++
		return r, nil
	}
	return c.Default, nil
}

// Reset records the call by incrementing ResetCallCount. The scripted
// sequence position is not rewound; use Rewind for that.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ResetCallCount++
}

// Rewind restarts the scripted sequence and clears call records. Thread-safe.
func (c *Classifier) Rewind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = 0
	c.IsSpeechCallCount = 0
	c.ResetCallCount = 0
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
