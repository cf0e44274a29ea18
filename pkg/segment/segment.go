// Package segment turns a stream of fixed-duration PCM frames into discrete
// utterances.
//
// A [Segmenter] feeds every frame to a [vad.Classifier] and applies two
// windows: an utterance ends once uninterrupted silence reaches the
// configured silence duration, and it is emitted only if it contains at
// least the configured minimum of classified speech; anything shorter is
// discarded as noise. Leading silence is never buffered; trailing silence
// accumulated during the wind-down stays in the emitted buffer.
//
// Given an identical frame sequence and classifier, emission outcomes and
// buffer contents are identical.
//
// Usage:
//
//	cls, _ := vad.Energy{}.NewClassifier(vad.Config{SampleRate: 48000, Aggressiveness: 2})
//	seg, _ := segment.New(cls, segment.Config{SampleRate: 48000})
//	for frame := range frames {
//	    utt, err := seg.Process(frame)
//	    if utt != nil {
//	        // one complete utterance, speech plus trailing silence
//	    }
//	}
package segment

import (
	"errors"
	"fmt"
	"time"

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/vad"
)

// State enumerates the segmenter's two phases.
type State int

const (
	// StateSilent means no utterance is in progress; silence frames are
	// discarded.
	StateSilent State = iota

	// StateSpeaking means an utterance is being buffered.
	StateSpeaking
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSilent:
		return "SILENT"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

const (
	// DefaultSilenceDuration is the uninterrupted-silence window that ends an
	// utterance.
	DefaultSilenceDuration = 600 * time.Millisecond

	// DefaultMinSpeechDuration is the minimum classified speech an utterance
	// must contain to be emitted rather than discarded.
	DefaultMinSpeechDuration = 300 * time.Millisecond
)

// Config holds the parameters for a Segmenter.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the inbound frames.
	SampleRate int

	// FrameDuration is the fixed duration of each inbound frame.
	// Defaults to 20 ms.
	FrameDuration time.Duration

	// SilenceDuration is the uninterrupted-silence window that finalizes an
	// utterance. Defaults to [DefaultSilenceDuration].
	SilenceDuration time.Duration

	// MinSpeechDuration is the minimum cumulative speech an utterance must
	// contain to be emitted. Defaults to [DefaultMinSpeechDuration].
	MinSpeechDuration time.Duration
}

// Utterance is one completed stretch of speech: the ordered concatenation of
// every buffered frame, speech and trailing silence alike. Ownership of PCM
// transfers to the caller on emission; the Segmenter never touches it again.
type Utterance struct {
	// PCM is the concatenated frame data, 16-bit mono little-endian.
	PCM []byte

	// SampleRate is the rate of PCM in Hz.
	SampleRate int

	// Frames is the total number of frames in PCM.
	Frames int

	// SpeechFrames is the number of frames the classifier scored as speech.
	SpeechFrames int
}

// Duration returns the playing time of the utterance.
func (u *Utterance) Duration() time.Duration {
	return audio.Duration(len(u.PCM), u.SampleRate)
}

// Segmenter accumulates frames into utterances. It is not safe for
// concurrent use; each stream needs its own instance.
type Segmenter struct {
	cfg        Config
	classifier vad.Classifier
	frameBytes int

	state        State
	buf          []byte
	frames       int
	speechFrames int
	silenceRun   int
}

// New creates a Segmenter that scores frames with classifier. Zero config
// durations fall back to the package defaults.
func New(classifier vad.Classifier, cfg Config) (*Segmenter, error) {
	if classifier == nil {
		return nil, errors.New("segment: classifier must not be nil")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("segment: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = audio.DefaultFrameDuration
	}
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = DefaultSilenceDuration
	}
	if cfg.MinSpeechDuration <= 0 {
		cfg.MinSpeechDuration = DefaultMinSpeechDuration
	}
	return &Segmenter{
		cfg:        cfg,
		classifier: classifier,
		frameBytes: audio.FrameBytes(cfg.SampleRate, cfg.FrameDuration),
	}, nil
}

// Process scores one frame and advances the state machine. It returns a
// non-nil Utterance when the frame completes one; a nil Utterance with nil
// error means the frame was absorbed (or discarded as leading silence).
//
// Mis-sized frames are rejected with an error wrapping [audio.ErrFrameSize]
// and are never buffered. A classifier failure is returned as an error and
// leaves the segmenter state untouched.
func (s *Segmenter) Process(frame []byte) (*Utterance, error) {
	if err := audio.ValidateFrame(frame, s.cfg.SampleRate, s.cfg.FrameDuration); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}

	speech, err := s.classifier.IsSpeech(frame)
	if err != nil {
		return nil, fmt.Errorf("segment: classify frame: %w", err)
	}

	if speech {
		s.state = StateSpeaking
		s.silenceRun = 0
		s.speechFrames++
		s.frames++
		s.buf = append(s.buf, frame...)
		return nil, nil
	}

	// Leading silence is discarded.
	if s.state != StateSpeaking {
		return nil, nil
	}

	// Trailing silence is retained, not trimmed.
	s.silenceRun++
	s.frames++
	s.buf = append(s.buf, frame...)

	if time.Duration(s.silenceRun)*s.cfg.FrameDuration < s.cfg.SilenceDuration {
		return nil, nil
	}

	// Silence window reached: emit if enough speech accumulated, otherwise
	// discard as noise. Either way the segmenter returns to SILENT.
	speechDur := time.Duration(s.speechFrames) * s.cfg.FrameDuration
	if speechDur < s.cfg.MinSpeechDuration {
		s.reset()
		return nil, nil
	}

	utt := &Utterance{
		PCM:          s.buf,
		SampleRate:   s.cfg.SampleRate,
		Frames:       s.frames,
		SpeechFrames: s.speechFrames,
	}
	s.buf = nil
	s.reset()
	return utt, nil
}

// State returns the current phase.
func (s *Segmenter) State() State {
	return s.state
}

// Buffered returns the duration of audio accumulated for the in-progress
// utterance. Zero while SILENT.
func (s *Segmenter) Buffered() time.Duration {
	return audio.Duration(len(s.buf), s.cfg.SampleRate)
}

// Snapshot returns a copy of the in-progress utterance buffer, safe to hand
// to a concurrent reader. Returns nil while SILENT.
func (s *Segmenter) Snapshot() []byte {
	if len(s.buf) == 0 {
		return nil
	}
	cp := make([]byte, len(s.buf))
	copy(cp, s.buf)
	return cp
}

// Reset clears all accumulated state, including the classifier's, without
// emitting. Use when the stream is interrupted or restarted.
func (s *Segmenter) Reset() {
	s.reset()
	s.classifier.Reset()
}

// reset clears the per-utterance counters and buffer.
func (s *Segmenter) reset() {
	s.buf = nil
	s.frames = 0
	s.speechFrames = 0
	s.silenceRun = 0
	s.state = StateSilent
}
