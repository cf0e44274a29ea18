package tts

import "github.com/taiwalabs/taiwa/pkg/viseme"

// Result is one synthesized utterance.
type Result struct {
	// Audio is raw little-endian mono int16 PCM, container header stripped.
	Audio []byte

	// SampleRate is the rate of Audio in Hz.
	SampleRate int

	// Phonemes carries the phoneme timing used to build the viseme timeline.
	// Zero value when the backend exposes no timing data.
	Phonemes viseme.Metadata
}

// Duration returns the audio length in seconds.
func (r Result) Duration() float64 {
	if r.SampleRate <= 0 {
		return 0
	}
	return float64(len(r.Audio)/2) / float64(r.SampleRate)
}
