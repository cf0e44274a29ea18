package vad

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/taiwalabs/taiwa/pkg/audio"
)

// rmsThresholds maps aggressiveness (0–3) to the root-mean-square amplitude,
// in int16 PCM units, at or above which a frame counts as speech. Full scale
// is 32767; 300 corresponds to near-silence on typical microphone input.
var rmsThresholds = [4]float64{200, 300, 450, 600}

// Compile-time assertion that Energy implements Engine.
var _ Engine = Energy{}

// Energy is an [Engine] backed by a per-frame RMS amplitude gate. It carries
// no cross-frame state, so its decisions are trivially deterministic and a
// classifier may be reused across utterances without Reset.
type Energy struct{}

// NewClassifier validates cfg and returns an RMS gate classifier.
func (Energy) NewClassifier(cfg Config) (Classifier, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("vad: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = audio.DefaultFrameDuration
	}
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness >= len(rmsThresholds) {
		return nil, fmt.Errorf("vad: aggressiveness must be in [0,%d], got %d",
			len(rmsThresholds)-1, cfg.Aggressiveness)
	}
	return &energyClassifier{
		threshold:  rmsThresholds[cfg.Aggressiveness],
		frameBytes: audio.FrameBytes(cfg.SampleRate, cfg.FrameDuration),
	}, nil
}

type energyClassifier struct {
	threshold  float64
	frameBytes int
}

func (c *energyClassifier) IsSpeech(frame []byte) (bool, error) {
	if len(frame) != c.frameBytes {
		return false, fmt.Errorf("vad: %w: got %d bytes, want %d",
			audio.ErrFrameSize, len(frame), c.frameBytes)
	}
	return rms(frame) >= c.threshold, nil
}

func (c *energyClassifier) Reset() {}

// rms returns the root-mean-square energy of a 16-bit signed little-endian
// PCM buffer. Returns 0 for buffers shorter than one sample. The result is
// expressed in the same units as PCM sample values (0–32767).
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
