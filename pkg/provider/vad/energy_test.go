package vad_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/vad"
)

// constantFrame returns one 20 ms mono frame at rate where every sample has
// the given amplitude, so the frame's RMS equals the amplitude.
func constantFrame(rate int, amplitude int16) []byte {
	n := rate * 20 / 1000
	buf := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestEnergy_SilenceVsSpeech(t *testing.T) {
	c, err := vad.Energy{}.NewClassifier(vad.Config{
		SampleRate:     48000,
		FrameDuration:  20 * time.Millisecond,
		Aggressiveness: 2,
	})
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}

	speech, err := c.IsSpeech(constantFrame(48000, 0))
	if err != nil {
		t.Fatalf("IsSpeech failed: %v", err)
	}
	if speech {
		t.Error("all-zero frame classified as speech")
	}

	speech, err = c.IsSpeech(constantFrame(48000, 8000))
	if err != nil {
		t.Fatalf("IsSpeech failed: %v", err)
	}
	if !speech {
		t.Error("loud frame classified as silence")
	}
}

func TestEnergy_AggressivenessOrdering(t *testing.T) {
	// RMS 350 sits between the aggressiveness-1 threshold (300) and the
	// aggressiveness-2 threshold (450).
	frame := constantFrame(16000, 350)

	cases := []struct {
		aggressiveness int
		wantSpeech     bool
	}{
		{0, true},
		{1, true},
		{2, false},
		{3, false},
	}
	for _, tc := range cases {
		c, err := vad.Energy{}.NewClassifier(vad.Config{
			SampleRate:     16000,
			Aggressiveness: tc.aggressiveness,
		})
		if err != nil {
			t.Fatalf("aggressiveness %d: NewClassifier failed: %v", tc.aggressiveness, err)
		}
		got, err := c.IsSpeech(frame)
		if err != nil {
			t.Fatalf("aggressiveness %d: IsSpeech failed: %v", tc.aggressiveness, err)
		}
		if got != tc.wantSpeech {
			t.Errorf("aggressiveness %d: got speech=%v, want %v", tc.aggressiveness, got, tc.wantSpeech)
		}
	}
}

func TestEnergy_WrongFrameSize(t *testing.T) {
	c, err := vad.Energy{}.NewClassifier(vad.Config{SampleRate: 48000})
	if err != nil {
		t.Fatalf("NewClassifier failed: %v", err)
	}
	_, err = c.IsSpeech(make([]byte, 100))
	if err == nil {
		t.Fatal("expected error for wrong frame size")
	}
	if !errors.Is(err, audio.ErrFrameSize) {
		t.Errorf("expected ErrFrameSize, got %v", err)
	}
}

func TestEnergy_InvalidConfig(t *testing.T) {
	if _, err := (vad.Energy{}).NewClassifier(vad.Config{SampleRate: 0}); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := (vad.Energy{}).NewClassifier(vad.Config{SampleRate: 48000, Aggressiveness: 4}); err == nil {
		t.Error("expected error for out-of-range aggressiveness")
	}
	if _, err := (vad.Energy{}).NewClassifier(vad.Config{SampleRate: 48000, Aggressiveness: -1}); err == nil {
		t.Error("expected error for negative aggressiveness")
	}
}
