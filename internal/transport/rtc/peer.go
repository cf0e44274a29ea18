package rtc

import (
	"context"
	"sync"
)

// PeerTransport abstracts one WebRTC peer connection from the server's side
// of the handshake. This decouples the signaling and session plumbing from
// the underlying WebRTC stack and allows testing without one; a pion-backed
// implementation slots in through [WithPeerFactory].
type PeerTransport interface {
	// Answer processes the remote peer's SDP offer and returns the SDP
	// answer.
	Answer(ctx context.Context, sdpOffer string) (sdpAnswer string, err error)

	// AddICECandidate adds a remote ICE candidate.
	AddICECandidate(candidate string) error

	// AudioInput returns the channel delivering 20 ms PCM frames decoded
	// from the peer's media track.
	AudioInput() <-chan []byte

	// SendAudio sends one PCM frame to the peer's media track.
	SendAudio(frame []byte) error

	// Close tears down the peer connection and releases resources.
	Close() error
}

const mockPeerBuffer = 64

// MockPeer is a loopback [PeerTransport] used in tests and as the default
// peer until a real WebRTC stack is wired in. Tests write inbound frames via
// [MockPeer.PushFrame] and observe outbound frames on [MockPeer.Sent].
type MockPeer struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}

	mu sync.Mutex
}

// NewMockPeer creates a loopback peer with buffered audio channels.
func NewMockPeer() *MockPeer {
	return &MockPeer{
		in:     make(chan []byte, mockPeerBuffer),
		out:    make(chan []byte, mockPeerBuffer),
		closed: make(chan struct{}),
	}
}

// Answer returns a stub SDP answer.
func (m *MockPeer) Answer(_ context.Context, _ string) (string, error) {
	return "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=taiwa audio\r\n", nil
}

// AddICECandidate accepts and discards the candidate.
func (m *MockPeer) AddICECandidate(_ string) error { return nil }

// AudioInput returns the inbound frame channel fed by [MockPeer.PushFrame].
func (m *MockPeer) AudioInput() <-chan []byte { return m.in }

// SendAudio records the outbound frame. Frames sent after Close, or while
// the buffer is full, are dropped.
func (m *MockPeer) SendAudio(frame []byte) error {
	select {
	case <-m.closed:
		return nil
	default:
	}
	select {
	case m.out <- frame:
	default:
	}
	return nil
}

// Close marks the peer closed. Safe to call more than once.
func (m *MockPeer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

// PushFrame delivers one inbound frame, as if decoded from the media track.
// Dropped once the peer is closed.
func (m *MockPeer) PushFrame(frame []byte) {
	select {
	case m.in <- frame:
	case <-m.closed:
	}
}

// Sent returns the channel of frames the server sent to this peer.
func (m *MockPeer) Sent() <-chan []byte { return m.out }
