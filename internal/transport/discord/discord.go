// Package discord binds a conversation session to a Discord voice channel.
//
// The binding joins one voice channel and coaches the first voice it hears:
// a coaching channel has one human in it, so the first SSRC on the wire is
// taken as the learner and any other stream is dropped. Inbound Opus packets
// are decoded to 48 kHz stereo, downmixed to mono, and fed to the session as
// 20 ms frames; reply audio is pulled from the session's pacer on a 20 ms
// ticker, upmixed, Opus-encoded, and sent back with the bot's speaking
// indicator toggled around playback. When a text channel is configured,
// every completed exchange is posted there as a message.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/taiwalabs/taiwa/internal/session"
	"github.com/taiwalabs/taiwa/internal/transport"
	"github.com/taiwalabs/taiwa/pkg/audio"
)

// Config locates the channels the binding serves.
type Config struct {
	// GuildID and ChannelID name the voice channel to join. Required.
	GuildID   string
	ChannelID string

	// TextChannelID, when set, receives each completed exchange as a text
	// message.
	TextChannelID string
}

// Option configures a [Binding].
type Option func(*Binding)

// WithLogger sets the binding's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(b *Binding) { b.log = log }
}

// Binding joins one voice channel to one conversation session. Create with
// [New], launch with [Binding.Start], tear down with [Binding.Close].
type Binding struct {
	dg       *discordgo.Session
	cfg      Config
	sessions transport.Opener
	log      *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	vc   *discordgo.VoiceConnection
	sess transport.Session

	// Indirections over the discordgo calls; replaced in tests.
	speak      func(bool) error
	disconnect func() error
	sendText   func(channelID, content string) error
}

// New creates a Binding for an active discordgo session. The discordgo
// session is owned by the caller and must already be connected.
func New(dg *discordgo.Session, cfg Config, sessions transport.Opener, opts ...Option) *Binding {
	b := &Binding{
		dg:       dg,
		cfg:      cfg,
		sessions: sessions,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Start joins the voice channel, opens a session, and begins pumping audio.
func (b *Binding) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return errors.New("discord: binding already started")
	}
	if b.cfg.GuildID == "" || b.cfg.ChannelID == "" {
		return errors.New("discord: guild and channel ids must not be empty")
	}

	// mute=false (the coach speaks), deaf=false (the coach listens).
	vc, err := b.dg.ChannelVoiceJoin(b.cfg.GuildID, b.cfg.ChannelID, false, false)
	if err != nil {
		return fmt.Errorf("discord: join voice channel %q: %w", b.cfg.ChannelID, err)
	}

	sess, err := b.sessions.Open(ctx, "discord")
	if err != nil {
		_ = vc.Disconnect()
		return fmt.Errorf("discord: open session: %w", err)
	}

	b.vc = vc
	b.sess = sess
	b.speak = vc.Speaking
	b.disconnect = vc.Disconnect
	b.sendText = func(channelID, content string) error {
		_, err := b.dg.ChannelMessageSend(channelID, content)
		return err
	}
	b.startLoops(ctx)
	b.started = true

	b.log.Info("voice channel joined",
		"guild_id", b.cfg.GuildID,
		"channel_id", b.cfg.ChannelID,
		"session_id", sess.ID(),
	)
	return nil
}

// startLoops launches the pump goroutines. The caller holds b.mu or owns b
// exclusively.
func (b *Binding) startLoops(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(3)
	go b.recvLoop(ctx)
	go b.sendLoop(ctx)
	go b.eventLoop(ctx)
}

// Close leaves the voice channel and tears the session down. Idempotent.
func (b *Binding) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	var err error
	if b.disconnect != nil {
		err = b.disconnect()
	}
	if b.sess != nil {
		b.sess.Close()
	}
	b.log.Info("voice channel left")
	return err
}

// recvLoop decodes the learner's Opus packets into session frames.
func (b *Binding) recvLoop(ctx context.Context) {
	defer b.wg.Done()

	dec, err := newOpusDecoder()
	if err != nil {
		b.log.Error("create opus decoder failed", "err", err)
		return
	}

	// Discord delivers 48 kHz stereo; the session wants 48 kHz mono.
	conv := audio.FormatConverter{
		Target: audio.Format{SampleRate: audio.DefaultSampleRate, Channels: 1},
	}

	var (
		learner uint32
		bound   bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-b.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}
			if !bound {
				learner = pkt.SSRC
				bound = true
				b.log.Info("learner stream bound", "ssrc", learner)
			} else if pkt.SSRC != learner {
				continue
			}

			stereo, err := dec.decode(pkt.Opus)
			if err != nil {
				b.log.Warn("opus decode failed", "err", err)
				continue
			}
			frame := conv.Convert(audio.AudioFrame{
				Data:       stereo,
				SampleRate: audio.DefaultSampleRate,
				Channels:   2,
			})
			if len(frame.Data) == 0 {
				continue
			}
			b.sess.HandleFrame(frame.Data)
		}
	}
}

// sendLoop pulls reply frames from the pacer on the frame tick, encodes
// them, and sends them to the voice channel. The speaking indicator follows
// the pacer's playing state.
func (b *Binding) sendLoop(ctx context.Context) {
	defer b.wg.Done()

	enc, err := newOpusEncoder()
	if err != nil {
		b.log.Error("create opus encoder failed", "err", err)
		return
	}

	pac := b.sess.Pacer()
	ticker := time.NewTicker(pac.FrameDuration())
	defer ticker.Stop()

	speaking := false
	defer func() {
		if speaking {
			b.setSpeaking(false)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			playing := pac.IsPlaying()
			if playing != speaking {
				b.setSpeaking(playing)
				speaking = playing
			}
			if !playing {
				continue
			}

			opusData, err := enc.encode(audio.MonoToStereo(pac.NextFrame()))
			if err != nil {
				b.log.Warn("opus encode failed", "err", err)
				continue
			}
			select {
			case b.vc.OpusSend <- opusData:
			case <-ctx.Done():
				return
			}
		}
	}
}

// eventLoop surfaces session events in the text channel. Only completed
// exchanges and errors have a text surface; interim transcripts and viseme
// timelines are dropped.
func (b *Binding) eventLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.sess.Events():
			if !ok {
				return
			}
			if b.cfg.TextChannelID == "" {
				continue
			}
			switch e := ev.(type) {
			case session.ResultEvent:
				msg := fmt.Sprintf("> %s\n%s", e.UserText, e.CoachText)
				if err := b.sendText(b.cfg.TextChannelID, msg); err != nil {
					b.log.Warn("post exchange failed", "err", err)
				}
			case session.StateEvent:
				if e.State != session.StateError.String() {
					continue
				}
				if err := b.sendText(b.cfg.TextChannelID, "_"+e.Reason+"_"); err != nil {
					b.log.Warn("post error notice failed", "err", err)
				}
			}
		}
	}
}

// setSpeaking toggles the bot's speaking indicator, logging failures.
func (b *Binding) setSpeaking(on bool) {
	if err := b.speak(on); err != nil {
		b.log.Warn("speaking notification failed", "speaking", on, "err", err)
	}
}
