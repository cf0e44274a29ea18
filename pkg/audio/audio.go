// Package audio provides the PCM primitives shared by every stage of the
// taiwa pipeline: frame validation, sample-rate conversion, channel
// conversion, and RIFF/WAVE encoding and parsing.
//
// All audio in the pipeline is 16-bit signed little-endian PCM. Session
// transports deliver fixed-duration mono frames (canonically 20 ms at
// 48 kHz); the speech recognizer consumes 16 kHz mono; the synthesizer
// produces audio at its own native rate. [Resample] bridges the rates in
// both directions.
package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	// BytesPerSample is fixed by the 16-bit PCM encoding used throughout.
	BytesPerSample = 2

	// DefaultSampleRate is the canonical transport sample rate in Hz.
	DefaultSampleRate = 48000

	// DefaultFrameDuration is the canonical transport frame length.
	DefaultFrameDuration = 20 * time.Millisecond
)

// ErrFrameSize is returned by [ValidateFrame] when a chunk's byte length
// does not correspond to exactly one mono frame at the expected rate and
// duration. Transports drop such chunks; they are never buffered.
var ErrFrameSize = errors.New("audio: frame size mismatch")

// AudioFrame represents a single frame of audio data flowing through the
// pipeline. Frames are the atomic unit of audio transport between a
// platform binding and a session.
type AudioFrame struct {
	// PCM audio data, 16-bit signed little-endian.
	Data []byte

	// SampleRate in Hz (e.g., 48000 on the transport, 16000 into the recognizer).
	SampleRate int

	// Channels: 1 for mono (the pipeline's working format), 2 for stereo
	// (Discord's wire format).
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// FrameBytes returns the byte length of one mono frame of the given duration
// at the given sample rate: rate × 2 × duration_ms / 1000.
func FrameBytes(sampleRate int, frameDur time.Duration) int {
	return sampleRate * BytesPerSample * int(frameDur.Milliseconds()) / 1000
}

// FrameSamples returns the sample count of one mono frame of the given
// duration at the given sample rate (960 at 48 kHz / 20 ms).
func FrameSamples(sampleRate int, frameDur time.Duration) int {
	return FrameBytes(sampleRate, frameDur) / BytesPerSample
}

// ValidateFrame checks that pcm holds exactly one mono frame at the given
// rate and duration. The returned error wraps [ErrFrameSize] so callers can
// test with errors.Is.
func ValidateFrame(pcm []byte, sampleRate int, frameDur time.Duration) error {
	want := FrameBytes(sampleRate, frameDur)
	if len(pcm) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(pcm), want)
	}
	return nil
}

// Duration returns the playing time of a mono PCM byte count at the given
// sample rate. Returns 0 for a non-positive rate.
func Duration(pcmBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := pcmBytes / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
