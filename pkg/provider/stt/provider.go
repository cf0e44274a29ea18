// Package stt defines the recognizer interface for speech-to-text backends.
//
// A [Recognizer] works one utterance at a time: the session engine segments
// the microphone stream, hands over a complete utterance, and receives the
// recognized text in a single call. Interim transcripts are produced the
// same way — the engine calls Recognize again over a snapshot of the
// still-growing buffer with a context it cancels once the utterance
// finalizes — so backends need no streaming protocol support.
//
// The package also carries the shared pieces every backend needs:
// [Prepare] conditions raw utterance audio before inference, and [Filter]
// drops the phrases batch models are known to fabricate from silence.
package stt

import "context"

// SampleRate is the PCM sample rate in Hz every Recognizer accepts.
// The session engine resamples transport audio down to this rate before
// recognition.
const SampleRate = 16000

// Recognizer converts one complete utterance to text.
//
// Implementations must be safe for concurrent use and must honour ctx
// cancellation promptly: the session engine cancels in-flight interim
// recognitions the moment an utterance finalizes, and a cancelled call must
// not deliver its result.
type Recognizer interface {
	// Recognize transcribes pcm — 16-bit signed little-endian mono at
	// [SampleRate] — and returns the recognized text. An empty string with a
	// nil error means the audio carried no usable speech; callers treat it
	// as "nothing was said" rather than a failure.
	Recognize(ctx context.Context, pcm []byte) (string, error)
}
