// Package vad defines the frame-level speech classifier that drives
// utterance segmentation.
//
// A classifier makes a binary speech-or-silence decision for each
// fixed-duration PCM frame. Implementations range from the built-in RMS
// energy gate ([Energy]) to model-backed detectors; all share the
// aggressiveness knob, which trades missed quiet speech against noise
// triggering. Classification is synchronous and must not block: it runs
// inside the per-frame segmentation loop.
//
// Classifiers must be deterministic: identical frame sequences yield
// identical decisions. A single [Classifier] instance carries per-stream
// state and must not be shared across goroutines unless the implementation
// documents otherwise.
package vad

import "time"

// Config holds the parameters for a classifier instance.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to IsSpeech. Common values: 16000, 48000.
	SampleRate int

	// FrameDuration is the duration of each audio frame. IsSpeech returns an
	// error if the supplied frame does not match this size. Defaults to 20 ms.
	FrameDuration time.Duration

	// Aggressiveness selects how strictly non-speech is filtered, from 0
	// (permissive, quiet speech passes) to 3 (strict, only clear speech
	// passes). Typical: 2.
	Aggressiveness int
}

// Classifier scores one audio frame at a time. Each instance maintains its
// own state; Reset clears it when the stream is interrupted or restarted so
// stale state cannot affect subsequent frames.
type Classifier interface {
	// IsSpeech reports whether the frame contains speech. The frame must be
	// raw little-endian mono PCM at the SampleRate and FrameDuration
	// configured when the classifier was created. Returns an error if the
	// frame size is wrong or the detector fails internally.
	IsSpeech(frame []byte) (bool, error)

	// Reset clears accumulated detection state without discarding the
	// classifier.
	Reset()
}

// Engine is the factory for classifiers. It is the top-level interface
// implemented by each detection backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewClassifier simultaneously to create independent classifiers.
type Engine interface {
	// NewClassifier creates a classifier with the given configuration,
	// immediately ready to score frames.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, frame duration, or aggressiveness out of range).
	NewClassifier(cfg Config) (Classifier, error)
}
