package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter normalises AudioFrames to a target format. It logs a
// warning on the first format mismatch and validates PCM data alignment.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a frame to the target format. If the source format
// already matches the target, the frame is returned unchanged (zero
// allocation).
//
// Resampling always runs on mono data: stereo sources are downmixed before
// any rate change, and a stereo target is reconstructed by duplication
// afterwards. A stereo-to-stereo rate change therefore passes through a mono
// intermediate.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	// Odd byte counts cannot hold int16 samples.
	if len(frame.Data)%BytesPerSample != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return AudioFrame{
			Data:       nil,
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	// Fast path: source matches target.
	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	currentChannels := frame.Channels

	// Step 1: downmix so the rate change operates on mono samples.
	if currentChannels == 2 {
		pcm = StereoToMono(pcm)
		currentChannels = 1
	}

	// Step 2: rate change.
	if frame.SampleRate != c.Target.SampleRate {
		pcm = Resample(pcm, frame.SampleRate, c.Target.SampleRate)
	}

	// Step 3: reconstruct stereo if the target wants it.
	if c.Target.Channels == 2 && currentChannels == 1 {
		pcm = MonoToStereo(pcm)
		currentChannels = 2
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   currentChannels,
		Timestamp:  frame.Timestamp,
	}
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	// Each stereo frame is 4 bytes (2 bytes L + 2 bytes R).
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		// Clamp to int16 range.
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Resample converts 16-bit mono PCM from srcRate to dstRate by
// nearest-neighbor selection. The output holds floor(n × dstRate / srcRate)
// samples; output sample i takes the input sample nearest to position
// i × (n−1) / (outLen−1), so the selected indices are spaced evenly across
// the whole input. Not band-limited: aliasing from downsampling passes
// through unchanged.
//
// If srcRate == dstRate the input is returned unchanged. Empty input yields
// empty output.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < BytesPerSample {
		return pcm
	}
	srcSamples := len(pcm) / BytesPerSample
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*BytesPerSample)
	if dstSamples == 1 {
		out[0], out[1] = pcm[0], pcm[1]
		return out
	}

	step := float64(srcSamples-1) / float64(dstSamples-1)
	for i := range dstSamples {
		src := int(math.Round(float64(i) * step))
		if src >= srcSamples {
			src = srcSamples - 1
		}
		out[i*2] = pcm[src*2]
		out[i*2+1] = pcm[src*2+1]
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
