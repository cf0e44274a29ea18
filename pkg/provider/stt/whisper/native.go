// This file contains the Native recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/taiwalabs/taiwa/pkg/provider/stt"
)

// Compile-time assertion that Native satisfies stt.Recognizer.
var _ stt.Recognizer = (*Native)(nil)

// Native implements stt.Recognizer using the whisper.cpp Go bindings (CGO).
// The model is loaded once at startup and shared across all sessions; each
// Recognize call creates its own whisper context, so concurrent calls are
// safe.
type Native struct {
	model    whisperlib.Model
	language string
	filter   *stt.Filter
}

// NativeOption is a functional option for configuring a Native recognizer.
type NativeOption func(*Native)

// WithNativeLanguage sets the language code for transcription (e.g., "ja",
// "en", "de"). Defaults to "ja".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// WithNativeFilter replaces the default fabrication filter. Pass nil to
// disable filtering entirely.
func WithNativeFilter(f *stt.Filter) NativeOption {
	return func(n *Native) { n.filter = f }
}

// NewNative creates a Native recognizer that loads the whisper.cpp model
// from the given file path. The caller must call Close when the recognizer
// is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &Native{
		model:    model,
		language: defaultLanguage,
		filter:   stt.NewFilter(),
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model. Must be called when the recognizer is no
// longer needed.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Recognize conditions pcm and runs whisper.cpp inference in-process.
//
// The bindings expose no mid-inference cancellation, so ctx is checked
// before inference starts and again before the result is returned; a call
// cancelled while inference runs discards its result.
func (n *Native) Recognize(ctx context.Context, pcm []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(pcm) == 0 {
		return "", nil
	}

	cleaned := stt.Prepare(pcm)
	if cleaned == nil {
		return "", nil
	}

	text, err := n.infer(cleaned)
	if err != nil {
		return "", err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if n.filter == nil {
		return strings.TrimSpace(text), nil
	}
	return n.filter.Clean(text), nil
}

// infer converts pcm to float32, runs whisper.cpp inference on a fresh
// context, and returns the concatenated segment text.
func (n *Native) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32(pcm)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", n.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	// Segments keep their leading whitespace so languages with spaces
	// concatenate correctly.
	var sb strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		sb.WriteString(segment.Text)
	}

	return sb.String(), nil
}
