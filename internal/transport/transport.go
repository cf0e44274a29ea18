// Package transport defines the contract between network bindings and the
// conversation session.
//
// A binding owns one network peer (a WebSocket, a WebRTC peer connection, a
// Discord voice channel) and pumps three flows: inbound 20 ms PCM frames into
// [Session.HandleFrame], outbound [session.Event] values to the peer as JSON,
// and paced reply audio pulled from the session's pacer on the binding's own
// 20 ms ticker. The session never touches the network; bindings never touch
// conversation state.
//
// Bindings live in the subpackages: ws (framed duplex WebSocket), rtc
// (media track plus HTTP signaling side channel), and discord (voice
// channel).
package transport

import (
	"context"
	"errors"

	"github.com/taiwalabs/taiwa/internal/session"
	"github.com/taiwalabs/taiwa/pkg/audio/pacer"
)

// ErrSessionLimit is returned by [Opener.Open] when the server is at its
// concurrent-session capacity. Bindings surface it to the peer and refuse the
// connection.
var ErrSessionLimit = errors.New("transport: session limit reached")

// Session is the binding-side view of a running conversation session.
// Implemented by [session.Session]; bindings depend on this interface so they
// can be tested without the full provider stack.
type Session interface {
	// ID identifies the session.
	ID() string

	// HandleFrame delivers one inbound PCM frame. Never blocks.
	HandleFrame(frame []byte)

	// Events is the outbound event stream. Closed when the session ends.
	Events() <-chan session.Event

	// Pacer serves the reply audio one frame per tick.
	Pacer() *pacer.Pacer

	// Close tears the session down. Idempotent.
	Close()
}

// Opener creates sessions for incoming connections. Implementations enforce
// the server's session limit and return [ErrSessionLimit] at capacity.
type Opener interface {
	Open(ctx context.Context, transport string) (Session, error)
}

// OpenerFunc adapts a function to the [Opener] interface.
type OpenerFunc func(ctx context.Context, transport string) (Session, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, transport string) (Session, error) {
	return f(ctx, transport)
}
