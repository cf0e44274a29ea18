package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taiwalabs/taiwa/internal/config"
	"github.com/taiwalabs/taiwa/internal/observe"
	"github.com/taiwalabs/taiwa/internal/session"
	"github.com/taiwalabs/taiwa/internal/transport"
	"github.com/taiwalabs/taiwa/pkg/history"
	"github.com/taiwalabs/taiwa/pkg/provider/vad"
)

// SessionManager creates one conversation session per connected learner and
// enforces the concurrent session cap. It implements [transport.Opener], so
// every binding (websocket, WebRTC signaling, Discord voice) draws its
// sessions from the same place and counts against the same limit.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	providers *Providers
	pool      *session.Pool
	store     history.Store
	metrics   *observe.Metrics
	engine    vad.Engine
	log       *slog.Logger

	// ctx outlives any single Open call; session run loops are children of
	// it, not of the HTTP request that opened them.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cfg      *config.Config
	sessions map[string]*managedSession
	closed   bool
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Config supplies the audio and session tunables. Required.
	Config *config.Config

	// Providers are the AI providers shared by every session. Required.
	Providers *Providers

	// Pool bounds provider work across sessions. Required.
	Pool *session.Pool

	// History archives exchanges and serves recall. Optional; nil disables
	// both.
	History history.Store

	// Metrics receives session instrumentation. Nil selects
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Engine builds a frame classifier for each session. Nil selects
	// [vad.Energy].
	Engine vad.Engine

	// Logger receives manager and session logs. Nil selects [slog.Default].
	Logger *slog.Logger
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.Config == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if cfg.Providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	if cfg.Pool == nil {
		return nil, errors.New("app: pool must not be nil")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Engine == nil {
		cfg.Engine = vad.Energy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		providers: cfg.Providers,
		pool:      cfg.Pool,
		store:     cfg.History,
		metrics:   cfg.Metrics,
		engine:    cfg.Engine,
		log:       cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg.Config,
		sessions:  make(map[string]*managedSession),
	}, nil
}

var _ transport.Opener = (*SessionManager)(nil)

// Open creates and starts a session for one learner connection. It returns
// [transport.ErrSessionLimit] when the configured cap is reached. The session
// keeps running after ctx ends; it stops when its Close is called or the
// manager shuts down.
func (sm *SessionManager) Open(ctx context.Context, transportName string) (transport.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil, errors.New("app: session manager is closed")
	}
	cfg := sm.cfg
	if limit := cfg.Session.Limit(); limit > 0 && len(sm.sessions) >= limit {
		return nil, transport.ErrSessionLimit
	}

	classifier, err := sm.engine.NewClassifier(vad.Config{
		SampleRate:     cfg.Audio.Rate(),
		FrameDuration:  cfg.Audio.FrameDuration(),
		Aggressiveness: cfg.Audio.Aggressiveness(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: create classifier: %w", err)
	}

	recallK := 0
	if sm.store != nil && cfg.History.RecallEnabled {
		recallK = cfg.History.K()
	}

	id := newSessionID(transportName)
	sess, err := session.New(session.Config{
		ID:                id,
		Transport:         transportName,
		Recognizer:        sm.providers.Recognizer,
		Responder:         sm.providers.Responder,
		Synthesizer:       sm.providers.Synthesizer,
		Classifier:        classifier,
		Pool:              sm.pool,
		History:           sm.store,
		Metrics:           sm.metrics,
		Logger:            sm.log,
		RecognizerName:    sm.providers.RecognizerName,
		ResponderName:     sm.providers.ResponderName,
		SynthesizerName:   sm.providers.SynthesizerName,
		Speaker:           sm.providers.Speaker,
		SampleRate:        cfg.Audio.Rate(),
		FrameDuration:     cfg.Audio.FrameDuration(),
		SilenceDuration:   cfg.Audio.SilenceDuration(),
		MinSpeechDuration: cfg.Audio.MinSpeechDuration(),
		PartialInterval:   cfg.Session.PartialInterval(),
		MinPartialBuffer:  cfg.Session.MinPartial(),
		ListeningThrottle: cfg.Session.ListeningThrottle(),
		CallTimeout:       cfg.Session.CallTimeout(),
		RecallK:           recallK,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create session: %w", err)
	}

	ms := &managedSession{
		Session: sess,
		release: func() { sm.remove(id) },
	}
	sm.sessions[id] = ms
	sess.Start(sm.ctx)

	sm.log.Info("session opened",
		"session_id", id,
		"transport", transportName,
		"active", len(sm.sessions),
	)
	return ms, nil
}

// Count reports the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Retune swaps the tunables used for sessions opened from now on. Live
// sessions keep the tuning they started with.
func (sm *SessionManager) Retune(cfg *config.Config) {
	if cfg == nil {
		return
	}
	sm.mu.Lock()
	sm.cfg = cfg
	sm.mu.Unlock()
	sm.log.Info("session tunables reloaded")
}

// Close tears down every live session and refuses new ones. Safe to call
// more than once.
func (sm *SessionManager) Close() error {
	sm.mu.Lock()
	if sm.closed {
		sm.mu.Unlock()
		return nil
	}
	sm.closed = true
	open := make([]*managedSession, 0, len(sm.sessions))
	for _, ms := range sm.sessions {
		open = append(open, ms)
	}
	sm.mu.Unlock()

	for _, ms := range open {
		ms.Close()
	}
	sm.cancel()

	if len(open) > 0 {
		sm.log.Info("sessions closed", "count", len(open))
	}
	return nil
}

// remove hands a session's slot back so a new learner can take it.
func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	delete(sm.sessions, id)
	sm.mu.Unlock()
}

// managedSession wraps a session so closing it releases its slot.
type managedSession struct {
	*session.Session
	release func()
}

func (m *managedSession) Close() {
	m.Session.Close()
	m.release()
}

// newSessionID builds ids like "ws-20260301T091500-3fa9c2d1": transport name,
// UTC timestamp, random suffix.
func newSessionID(transportName string) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s-%s-%s",
		transportName,
		time.Now().UTC().Format("20060102T150405"),
		hex.EncodeToString(suffix),
	)
}
