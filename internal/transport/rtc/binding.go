package rtc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taiwalabs/taiwa/internal/session"
	"github.com/taiwalabs/taiwa/internal/transport"
)

// eventQueueLimit bounds the per-peer event backlog. A client that stops
// polling loses its oldest events first.
const eventQueueLimit = 256

// binding pumps audio and events between one peer and its session. Inbound
// frames flow from the peer's media track into the session; outbound, a
// frame ticker feeds the pacer's reply audio to the track while events queue
// up for the signaling side channel.
type binding struct {
	id   string
	peer PeerTransport
	sess transport.Session
	log  *slog.Logger

	mu     sync.Mutex
	queue  []session.Event
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newBinding starts the pump loops. The binding lives until [binding.close];
// its context is detached from the signaling request that created it.
func newBinding(peer PeerTransport, sess transport.Session, log *slog.Logger) *binding {
	ctx, cancel := context.WithCancel(context.Background())
	b := &binding{
		id:     sess.ID(),
		peer:   peer,
		sess:   sess,
		log:    log.With("session_id", sess.ID()),
		cancel: cancel,
	}
	b.wg.Add(2)
	go b.inputLoop(ctx)
	go b.outputLoop(ctx)
	return b
}

// inputLoop delivers decoded track frames to the session.
func (b *binding) inputLoop(ctx context.Context) {
	defer b.wg.Done()
	in := b.peer.AudioInput()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-in:
			if !ok {
				return
			}
			b.sess.HandleFrame(frame)
		}
	}
}

// outputLoop queues session events for the side channel and, on each frame
// tick while the pacer is playing, sends one reply frame to the track.
func (b *binding) outputLoop(ctx context.Context) {
	defer b.wg.Done()

	pac := b.sess.Pacer()
	ticker := time.NewTicker(pac.FrameDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-b.sess.Events():
			if !ok {
				return
			}
			b.pushEvent(ev)

		case <-ticker.C:
			if !pac.IsPlaying() {
				continue
			}
			if err := b.peer.SendAudio(pac.NextFrame()); err != nil {
				b.log.Warn("send audio failed", "err", err)
				return
			}
		}
	}
}

// pushEvent appends ev to the side-channel backlog, dropping the oldest
// entry when the backlog is full.
func (b *binding) pushEvent(ev session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) >= eventQueueLimit {
		b.queue = b.queue[1:]
	}
	b.queue = append(b.queue, ev)
}

// drainEvents returns and clears the queued events, oldest first.
func (b *binding) drainEvents() []session.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	evs := b.queue
	b.queue = nil
	if evs == nil {
		evs = []session.Event{}
	}
	return evs
}

// close stops the loops and releases the peer and the session. Idempotent.
func (b *binding) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	if err := b.peer.Close(); err != nil {
		b.log.Warn("peer close failed", "err", err)
	}
	b.sess.Close()
	b.log.Info("peer disconnected")
}
