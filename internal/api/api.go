// Package api serves the offline coaching endpoint and the health probes.
//
// POST /api/coach runs one utterance through the same recognize → respond →
// synthesize pipeline a live session uses, synchronously, and returns the
// exchange as JSON with the reply audio as a base64 WAV. It exists for
// clients that cannot hold a realtime connection: batch evaluation, smoke
// tests, and pages that record first and play back after.
//
// The package also exposes the process probes:
//
//   - GET /healthz — liveness; always 200 for a serving process.
//   - GET /readyz  — readiness; 200 only when every registered checker
//     passes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/taiwalabs/taiwa/pkg/provider/llm"
	"github.com/taiwalabs/taiwa/pkg/provider/stt"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
)

const (
	// defaultCallTimeout bounds each provider call, matching the live
	// session's per-stage deadline.
	defaultCallTimeout = 30 * time.Second

	// defaultMaxBody caps the uploaded WAV. 20 MiB holds over ten minutes
	// of 16 kHz mono, far beyond any single utterance.
	defaultMaxBody int64 = 20 << 20

	// defaultSpeaker is the synthesizer voice used when the request does
	// not pick one.
	defaultSpeaker = 1
)

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the server's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithSpeaker sets the synthesizer voice used when a request carries no
// speaker query parameter.
func WithSpeaker(id int) Option {
	return func(s *Server) { s.speaker = id }
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) { s.callTimeout = d }
}

// WithMaxBodySize caps the accepted upload size in bytes.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// WithChecker registers a named readiness check evaluated on every /readyz
// request. Checkers run sequentially in registration order.
func WithChecker(name string, check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, checker{name: name, check: check})
	}
}

// Server handles the offline coach endpoint and the health probes. It is
// safe for concurrent use; all configuration is fixed at construction.
type Server struct {
	rec  stt.Recognizer
	resp llm.Responder
	syn  tts.Synthesizer
	log  *slog.Logger

	speaker     int
	callTimeout time.Duration
	maxBody     int64
	checkers    []checker
}

// New creates a Server over the given providers.
func New(rec stt.Recognizer, resp llm.Responder, syn tts.Synthesizer, opts ...Option) (*Server, error) {
	var errs []error
	if rec == nil {
		errs = append(errs, errors.New("recognizer must not be nil"))
	}
	if resp == nil {
		errs = append(errs, errors.New("responder must not be nil"))
	}
	if syn == nil {
		errs = append(errs, errors.New("synthesizer must not be nil"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	s := &Server{
		rec:         rec,
		resp:        resp,
		syn:         syn,
		log:         slog.Default(),
		speaker:     defaultSpeaker,
		callTimeout: defaultCallTimeout,
		maxBody:     defaultMaxBody,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/coach", s.handleCoach)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
}

// errorResponse is the JSON body of every non-200 response.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
