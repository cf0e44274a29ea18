// Package rtc serves conversation sessions over a WebRTC-style peer
// connection with an HTTP signaling side channel.
//
// Audio flows on the peer's media track: inbound 20 ms PCM frames feed the
// session, and reply audio is sent back on the track at one frame per tick.
// Everything else rides the side channel: the peer posts an SDP offer to
// join, trickles ICE candidates, and polls for the session's JSON events.
//
// The peer connection itself sits behind [PeerTransport]; the default is the
// loopback [MockPeer] until a concrete WebRTC stack is plugged in through
// [WithPeerFactory].
package rtc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/taiwalabs/taiwa/internal/session"
	"github.com/taiwalabs/taiwa/internal/transport"
)

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the server's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithPeerFactory sets the constructor for new peer connections. Defaults to
// [NewMockPeer].
func WithPeerFactory(factory func() PeerTransport) Option {
	return func(s *Server) { s.newPeer = factory }
}

// Server handles WebRTC signaling and owns one binding per connected peer.
type Server struct {
	sessions transport.Opener
	newPeer  func() PeerTransport
	log      *slog.Logger

	mu       sync.Mutex
	bindings map[string]*binding
}

// NewServer creates a signaling server that opens one session per peer.
func NewServer(sessions transport.Opener, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		newPeer:  func() PeerTransport { return NewMockPeer() },
		log:      slog.Default(),
		bindings: make(map[string]*binding),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns an http.Handler serving the signaling endpoints:
//
//	POST   /rtc/offer                — peer sends SDP offer, gets session id + SDP answer
//	POST   /rtc/{sessionID}/ice      — peer sends an ICE candidate
//	GET    /rtc/{sessionID}/events   — peer drains queued session events
//	DELETE /rtc/{sessionID}          — peer disconnects
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rtc/offer", s.handleOffer)
	mux.HandleFunc("POST /rtc/{sessionID}/ice", s.handleICE)
	mux.HandleFunc("GET /rtc/{sessionID}/events", s.handleEvents)
	mux.HandleFunc("DELETE /rtc/{sessionID}", s.handleLeave)
	return mux
}

// offerRequest is the JSON body for the offer endpoint.
type offerRequest struct {
	SDPOffer string `json:"sdp_offer"`
}

// offerResponse is the JSON body returned from the offer endpoint.
type offerResponse struct {
	SessionID string `json:"session_id"`
	SDPAnswer string `json:"sdp_answer"`
}

// handleOffer handles POST /rtc/offer: one offer opens one session.
func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SDPOffer == "" {
		http.Error(w, "sdp_offer is required", http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Open(r.Context(), "rtc")
	if err != nil {
		if errors.Is(err, transport.ErrSessionLimit) {
			http.Error(w, "session limit reached", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "failed to open session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	peer := s.newPeer()
	answer, err := peer.Answer(r.Context(), req.SDPOffer)
	if err != nil {
		_ = peer.Close()
		sess.Close()
		http.Error(w, "failed to answer offer: "+err.Error(), http.StatusInternalServerError)
		return
	}

	b := newBinding(peer, sess, s.log)
	s.mu.Lock()
	s.bindings[sess.ID()] = b
	s.mu.Unlock()
	s.log.Info("peer connected", "session_id", sess.ID())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(offerResponse{SessionID: sess.ID(), SDPAnswer: answer})
}

// iceRequest is the JSON body for the ICE candidate endpoint.
type iceRequest struct {
	Candidate string `json:"candidate"`
}

// handleICE handles POST /rtc/{sessionID}/ice.
func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	b, ok := s.binding(r.PathValue("sessionID"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	var req iceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := b.peer.AddICECandidate(req.Candidate); err != nil {
		http.Error(w, "failed to add ICE candidate: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// eventsResponse is the JSON body returned from the events endpoint.
type eventsResponse struct {
	Events []session.Event `json:"events"`
}

// handleEvents handles GET /rtc/{sessionID}/events: it drains and returns
// the events queued since the previous poll.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	b, ok := s.binding(r.PathValue("sessionID"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(eventsResponse{Events: b.drainEvents()})
}

// handleLeave handles DELETE /rtc/{sessionID}.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionID")

	s.mu.Lock()
	b, ok := s.bindings[id]
	delete(s.bindings, id)
	s.mu.Unlock()
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	b.close()
	w.WriteHeader(http.StatusOK)
}

// binding looks up the binding for a session id.
func (s *Server) binding(id string) (*binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[id]
	return b, ok
}

// Close tears down every connected peer. Used at server shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	bindings := make([]*binding, 0, len(s.bindings))
	for id, b := range s.bindings {
		bindings = append(bindings, b)
		delete(s.bindings, id)
	}
	s.mu.Unlock()

	for _, b := range bindings {
		b.close()
	}
}
