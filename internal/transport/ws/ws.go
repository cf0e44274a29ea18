// Package ws serves conversation sessions over a framed duplex WebSocket.
//
// The wire protocol is binary-in, JSON-out: every binary message from the
// client is one 20 ms PCM frame (16-bit mono little-endian at the server's
// sample rate), and every text message to the client is one JSON-encoded
// [session.Event]. While the coach is speaking, reply audio streams back as
// binary messages at one frame per 20 ms tick. Text messages from the client
// are ignored.
//
// One WebSocket connection is one session: the handler opens a session on
// upgrade and closes it when either side disconnects.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/taiwalabs/taiwa/internal/transport"
	"github.com/taiwalabs/taiwa/pkg/audio"
)

const (
	// defaultReadLimit bounds a single inbound message. Frames are under
	// 2 KiB at 48 kHz; anything near the limit is a misbehaving client.
	defaultReadLimit = 32 << 10

	// defaultPingInterval is the keepalive cadence.
	defaultPingInterval = 20 * time.Second

	// pingTimeout bounds the wait for a pong before the connection is
	// considered dead.
	pingTimeout = 5 * time.Second
)

// Option configures a [Handler].
type Option func(*Handler)

// WithLogger sets the handler's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithOriginPatterns authorizes browser origins for the upgrade handshake.
// Empty means same-origin only.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = patterns }
}

// WithPingInterval sets the keepalive cadence. Defaults to 20 s.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handler) { h.pingInterval = d }
}

// Handler upgrades HTTP requests to WebSocket conversations. Mount it on the
// server mux; each accepted connection runs until one side disconnects.
type Handler struct {
	sessions       transport.Opener
	log            *slog.Logger
	originPatterns []string
	readLimit      int64
	pingInterval   time.Duration
	frameDuration  time.Duration
}

// NewHandler creates a Handler that opens one session per connection.
func NewHandler(sessions transport.Opener, opts ...Option) *Handler {
	h := &Handler{
		sessions:      sessions,
		log:           slog.Default(),
		readLimit:     defaultReadLimit,
		pingInterval:  defaultPingInterval,
		frameDuration: audio.DefaultFrameDuration,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements http.Handler. It opens a session, upgrades the
// connection, and pumps frames and events until either side disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Open(r.Context(), "ws")
	if err != nil {
		if errors.Is(err, transport.ErrSessionLimit) {
			http.Error(w, "session limit reached", http.StatusServiceUnavailable)
			return
		}
		h.log.Error("open session failed", "err", err)
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the handshake failure.
		h.log.Debug("websocket accept failed", "err", err)
		sess.Close()
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "session closed")
	conn.SetReadLimit(h.readLimit)

	log := h.log.With("session_id", sess.ID())
	log.Info("websocket connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, conn, sess)
		// A server-side session end must also unblock the read loop.
		cancel()
	}()

	h.readLoop(ctx, conn, sess)
	cancel()
	sess.Close()
	wg.Wait()
	log.Info("websocket disconnected")
}

// readLoop delivers inbound binary messages to the session until the
// connection or the context ends.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sess transport.Session) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		// HandleFrame copies, so the read buffer may be reused.
		sess.HandleFrame(data)
	}
}

// writeLoop sends events as JSON text messages and, on each frame tick while
// the pacer is playing, one binary audio frame. It also runs the keepalive.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sess transport.Session) {
	ticker := time.NewTicker(h.frameDuration)
	defer ticker.Stop()
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	pac := sess.Pacer()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("marshal event failed", "err", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}

		case <-ticker.C:
			if !pac.IsPlaying() {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageBinary, pac.NextFrame()); err != nil {
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}
