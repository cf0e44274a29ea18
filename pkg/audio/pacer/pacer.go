// Package pacer meters synthesized audio out at a fixed real-time cadence.
//
// Synthesis produces a whole utterance at once, but transports consume audio
// one frame per tick (20 ms by default). A [Pacer] sits between the two: the
// session enqueues the full PCM buffer and receives a completion signal,
// while the transport pulls one frame per tick via [Pacer.NextFrame] and gets
// silence whenever nothing is queued.
//
//	p, err := pacer.New(48000, 20*time.Millisecond)
//	if err != nil { ... }
//	done := p.Enqueue(pcm)
//	// transport send loop, on its ticker:
//	frame := p.NextFrame()
//	// session run loop:
//	<-done
package pacer

import (
	"fmt"
	"sync"
	"time"

	"github.com/taiwalabs/taiwa/pkg/audio"
)

// Pacer holds synthesized PCM split into fixed-size frames and hands out one
// frame per pull. Safe for concurrent use: the session enqueues from its run
// loop while the transport pulls from its send ticker.
type Pacer struct {
	frameBytes int
	frameDur   time.Duration
	silence    []byte

	mu      sync.Mutex
	queue   [][]byte
	playing bool
	done    chan struct{}
}

// New returns a pacer producing frames of frameDur mono audio at sampleRate.
// A non-positive frameDur selects [audio.DefaultFrameDuration].
func New(sampleRate int, frameDur time.Duration) (*Pacer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pacer: sample rate must be positive, got %d", sampleRate)
	}
	if frameDur <= 0 {
		frameDur = audio.DefaultFrameDuration
	}
	frameBytes := audio.FrameBytes(sampleRate, frameDur)
	if frameBytes <= 0 {
		return nil, fmt.Errorf("pacer: frame duration %v too short at %d Hz", frameDur, sampleRate)
	}
	return &Pacer{
		frameBytes: frameBytes,
		frameDur:   frameDur,
		silence:    make([]byte, frameBytes),
	}, nil
}

// Enqueue splits pcm into frame-size chunks, zero-padding the final chunk,
// and appends them to the queue. The returned channel closes once every
// queued frame has been pulled and playback has wound down to silence; an
// empty pcm with nothing queued closes it immediately.
//
// Callers should wait on the returned signal before enqueueing the next
// buffer. A second Enqueue while one is outstanding resolves the earlier
// signal right away and the two buffers play back-to-back.
func (p *Pacer) Enqueue(pcm []byte) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	for off := 0; off < len(pcm); off += p.frameBytes {
		end := off + p.frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		frame := make([]byte, p.frameBytes)
		copy(frame, pcm[off:end])
		p.queue = append(p.queue, frame)
	}

	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	done := make(chan struct{})
	if len(p.queue) == 0 && !p.playing {
		close(done)
		return done
	}
	p.done = done
	return done
}

// NextFrame pops and returns the next queued frame. When the queue is empty
// it returns a shared silence frame, which callers must not modify, and if
// the previous pulls were playing audio it fires the completion signal.
func (p *Pacer) NextFrame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) > 0 {
		frame := p.queue[0]
		p.queue = p.queue[1:]
		p.playing = true
		return frame
	}
	if p.playing {
		p.playing = false
		if p.done != nil {
			close(p.done)
			p.done = nil
		}
	}
	return p.silence
}

// IsPlaying reports whether audio is queued or the most recent pull returned
// audio rather than silence.
func (p *Pacer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing || len(p.queue) > 0
}

// QueueDuration returns the playback time remaining in the queue.
func (p *Pacer) QueueDuration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(len(p.queue)) * p.frameDur
}

// FrameBytes returns the fixed frame size in bytes.
func (p *Pacer) FrameBytes() int { return p.frameBytes }

// FrameDuration returns the fixed frame cadence.
func (p *Pacer) FrameDuration() time.Duration { return p.frameDur }

// Reset drops all queued audio and resolves any outstanding completion
// signal.
func (p *Pacer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
	p.playing = false
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
}
