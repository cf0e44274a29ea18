package stt

import (
	"encoding/binary"
	"math"
)

const (
	// quietRMS is the post-DC-removal energy below which a buffer is treated
	// as carrying no speech at all. 16-bit PCM peaks at 32 767; 200 is near
	// silence.
	quietRMS = 200.0

	// targetRMS is the loudness the gain stage normalizes toward.
	targetRMS = 3000.0

	minGain = 0.2
	maxGain = 6.0
)

// Prepare conditions one utterance before inference: it removes the DC
// offset, normalizes loudness toward a fixed target, and clips back into
// 16-bit range. It returns nil when the buffer is too quiet to carry speech;
// callers should treat that as "nothing to recognize" and skip the backend
// call entirely.
func Prepare(pcm []byte) []byte {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}

	samples := make([]float64, n)
	var mean float64
	for i := range n {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		mean += samples[i]
	}
	mean /= float64(n)

	var energy float64
	for i := range n {
		samples[i] -= mean
		energy += samples[i] * samples[i]
	}
	rms := math.Sqrt(energy/float64(n) + 1e-9)
	if rms < quietRMS {
		return nil
	}

	gain := targetRMS / rms
	if gain < minGain {
		gain = minGain
	} else if gain > maxGain {
		gain = maxGain
	}

	out := make([]byte, n*2)
	for i := range n {
		v := math.Round(samples[i] * gain)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(v)))
	}
	return out
}
