// Package tts defines the Synthesizer interface for speech synthesis backends.
//
// A synthesizer wraps a speech service (a local VOICEVOX engine, a hosted API,
// ...) behind a single one-shot call: reply text in, raw PCM plus phoneme
// timing out. The phoneme timing feeds lip-sync; backends that expose no
// timing return a zero Metadata and the avatar simply keeps its mouth closed.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Synthesizer turns reply text into speakable audio.
type Synthesizer interface {
	// Synthesize renders text with the given speaker voice. Speaker ids are
	// backend-specific; a negative speaker selects the backend's configured
	// default. Implementations must honour ctx cancellation.
	Synthesize(ctx context.Context, text string, speaker int) (Result, error)
}
