// Package session runs the realtime conversation loop for one connected
// learner.
//
// A [Session] sits between a transport and the AI providers. Inbound 20 ms
// PCM frames feed an utterance segmenter; when an utterance closes, the
// recognize → respond → synthesize pipeline produces the coach's reply,
// which plays back through a [pacer.Pacer] at the transport's own cadence.
// Progress goes out on the event stream as JSON-serializable [Event]
// values: state changes, interim transcripts, the finished exchange, and
// the mouth-shape timeline for the reply.
//
// # Concurrency
//
// A single goroutine, the run loop, owns every piece of mutable session
// state: the segmenter, the processing flag, partial-recognition
// scheduling, the history window, and event emission. Provider calls run on
// a shared bounded [Pool]; their results come back over channels into the
// run loop, so no lock guards the conversation state. Transports interact
// only through [Session.HandleFrame], [Session.Events], and the pacer, all
// safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taiwalabs/taiwa/internal/observe"
	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/audio/pacer"
	"github.com/taiwalabs/taiwa/pkg/history"
	"github.com/taiwalabs/taiwa/pkg/provider/llm"
	"github.com/taiwalabs/taiwa/pkg/provider/stt"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
	"github.com/taiwalabs/taiwa/pkg/provider/vad"
	"github.com/taiwalabs/taiwa/pkg/segment"
)

// State is a session's position in the conversation loop.
type State int

const (
	// StateIdle means no speech is in progress; frames feed the segmenter.
	StateIdle State = iota

	// StateListening means an utterance is being buffered.
	StateListening

	// StateThinking means the pipeline is producing a reply. Inbound frames
	// are consumed and dropped.
	StateThinking

	// StateSpeaking means the reply is playing through the pacer. Inbound
	// frames are consumed and dropped.
	StateSpeaking

	// StateError marks a failed pipeline. It is reported once on the wire
	// and the session returns to idle immediately; no retry is attempted.
	StateError
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const (
	// DefaultPartialInterval is the cadence of interim recognition attempts
	// while an utterance is being buffered.
	DefaultPartialInterval = time.Second

	// DefaultMinPartialBuffer is the least buffered audio worth sending for
	// interim recognition.
	DefaultMinPartialBuffer = 300 * time.Millisecond

	// DefaultListeningThrottle caps how often the LISTENING transition is
	// announced, so segmenter discard/re-enter churn stays off the wire.
	DefaultListeningThrottle = 250 * time.Millisecond

	// DefaultCallTimeout bounds each provider network call.
	DefaultCallTimeout = 30 * time.Second

	// historyLimit is how many recent exchanges accompany each respond
	// call. Older exchanges drop out of the window; a configured history
	// store still archives every one of them.
	historyLimit = 16

	// frameBuffer is the intake queue depth in frames. At the 20 ms cadence
	// this absorbs over half a second of transport jitter.
	frameBuffer = 32

	// eventBuffer is the outbound event queue depth.
	eventBuffer = 64
)

// Config bundles the collaborators and tunables for one session.
type Config struct {
	// ID identifies the session in logs, metrics, and archived history.
	// Required.
	ID string

	// Transport names the binding that created the session ("ws", "rtc",
	// "discord"). Used as a metric attribute.
	Transport string

	// Recognizer, Responder, and Synthesizer are the AI providers.
	// Required.
	Recognizer  stt.Recognizer
	Responder   llm.Responder
	Synthesizer tts.Synthesizer

	// Classifier scores inbound frames for the segmenter. Required.
	Classifier vad.Classifier

	// Pool bounds provider work across sessions. Required.
	Pool *Pool

	// History archives completed exchanges and serves semantic recall.
	// Optional; nil disables both.
	History history.Store

	// Metrics receives session instrumentation. Nil selects
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger receives session logs. Nil selects [slog.Default].
	Logger *slog.Logger

	// RecognizerName, ResponderName, and SynthesizerName label provider
	// metrics. Optional.
	RecognizerName  string
	ResponderName   string
	SynthesizerName string

	// Speaker is the synthesizer voice. Negative selects the provider
	// default.
	Speaker int

	// SampleRate is the transport audio rate in Hz. Defaults to
	// [audio.DefaultSampleRate].
	SampleRate int

	// FrameDuration is the transport frame length. Defaults to
	// [audio.DefaultFrameDuration].
	FrameDuration time.Duration

	// SilenceDuration and MinSpeechDuration tune the segmenter; zero
	// values select the segment package defaults.
	SilenceDuration   time.Duration
	MinSpeechDuration time.Duration

	// PartialInterval, MinPartialBuffer, ListeningThrottle, and CallTimeout
	// tune the loop; zero values select the package defaults.
	PartialInterval   time.Duration
	MinPartialBuffer  time.Duration
	ListeningThrottle time.Duration
	CallTimeout       time.Duration

	// RecallK is how many semantically similar past exchanges to merge
	// into the prompt. Zero disables recall; it also needs a History store
	// that supports similarity search.
	RecallK int
}

// Session is the conversation loop for one connected learner. Create with
// [New], launch with [Session.Start], tear down with [Session.Close].
type Session struct {
	cfg     Config
	id      string
	log     *slog.Logger
	metrics *observe.Metrics

	seg *segment.Segmenter
	pac *pacer.Pacer

	frames          chan []byte
	events          chan Event
	partialResults  chan partialResult
	pipelineResults chan pipelineResult

	// Run-loop-owned state. Touched only by run and the on* helpers.
	state           State
	processing      bool
	lastListening   time.Time
	partialGen      uint64
	partialInflight bool
	partialCancel   context.CancelFunc
	playback        <-chan struct{}
	pipelineStarted time.Time
	recent          []llm.Exchange

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Session from cfg. Zero tunables fall back to the package
// defaults; missing collaborators are an error.
func New(cfg Config) (*Session, error) {
	if cfg.ID == "" {
		return nil, errors.New("session: id must not be empty")
	}
	if cfg.Recognizer == nil {
		return nil, errors.New("session: recognizer must not be nil")
	}
	if cfg.Responder == nil {
		return nil, errors.New("session: responder must not be nil")
	}
	if cfg.Synthesizer == nil {
		return nil, errors.New("session: synthesizer must not be nil")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("session: classifier must not be nil")
	}
	if cfg.Pool == nil {
		return nil, errors.New("session: pool must not be nil")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = audio.DefaultFrameDuration
	}
	if cfg.PartialInterval <= 0 {
		cfg.PartialInterval = DefaultPartialInterval
	}
	if cfg.MinPartialBuffer <= 0 {
		cfg.MinPartialBuffer = DefaultMinPartialBuffer
	}
	if cfg.ListeningThrottle <= 0 {
		cfg.ListeningThrottle = DefaultListeningThrottle
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	seg, err := segment.New(cfg.Classifier, segment.Config{
		SampleRate:        cfg.SampleRate,
		FrameDuration:     cfg.FrameDuration,
		SilenceDuration:   cfg.SilenceDuration,
		MinSpeechDuration: cfg.MinSpeechDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	pac, err := pacer.New(cfg.SampleRate, cfg.FrameDuration)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		cfg:             cfg,
		id:              cfg.ID,
		log:             cfg.Logger.With("session_id", cfg.ID),
		metrics:         cfg.Metrics,
		seg:             seg,
		pac:             pac,
		frames:          make(chan []byte, frameBuffer),
		events:          make(chan Event, eventBuffer),
		partialResults:  make(chan partialResult, 1),
		pipelineResults: make(chan pipelineResult, 1),
	}
	s.metrics.ActiveSessions.Add(context.Background(), 1)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Events returns the outbound event stream. The channel is closed by
// [Session.Close]; consumers must drain it until then.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Pacer returns the playback pacer. The transport pulls one frame per tick
// via [pacer.Pacer.NextFrame] while [pacer.Pacer.IsPlaying] reports true.
func (s *Session) Pacer() *pacer.Pacer {
	return s.pac
}

// Start launches the run loop. The session stops when ctx ends or
// [Session.Close] is called; calling Start again, or after Close, has no
// effect.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info("session started",
		"transport", s.cfg.Transport,
		"sample_rate", s.cfg.SampleRate,
		"speaker", s.cfg.Speaker,
	)
}

// Close tears the session down: inflight provider work is cancelled,
// queued playback is dropped with its completion resolved, and the event
// stream is closed. Safe to call multiple times.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.pac.Reset()
	close(s.events)
	s.metrics.ActiveSessions.Add(context.Background(), -1)
	s.log.Info("session closed")
}

// HandleFrame delivers one transport audio frame to the run loop. It never
// blocks: a mis-sized frame is rejected on the spot, and when the intake
// queue is full the frame is dropped and counted. The frame is copied, so
// callers may reuse the backing buffer.
func (s *Session) HandleFrame(frame []byte) {
	if err := audio.ValidateFrame(frame, s.cfg.SampleRate, s.cfg.FrameDuration); err != nil {
		s.metrics.RecordFrameDrop(context.Background(), "size")
		s.log.Debug("frame rejected", "err", err)
		return
	}

	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case s.frames <- cp:
	default:
		s.metrics.RecordFrameDrop(context.Background(), "busy")
	}
}

// ---- run loop ----

// run is the single goroutine that owns all conversation state.
func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PartialInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.cancelPartial()
			return
		case frame := <-s.frames:
			s.onFrame(ctx, frame)
		case <-ticker.C:
			s.maybePartial(ctx)
		case res := <-s.partialResults:
			s.onPartialResult(ctx, res)
		case res := <-s.pipelineResults:
			s.onPipelineResult(ctx, res)
		case <-s.playback:
			// Nil while nothing is playing; a nil channel never fires.
			s.onPlaybackDone(ctx)
		}
	}
}

// onFrame advances the segmenter with one validated frame and mirrors its
// state onto the session.
func (s *Session) onFrame(ctx context.Context, frame []byte) {
	if s.processing {
		// Single-flight: the coach is thinking or speaking. Frames are
		// consumed and dropped, never buffered for later.
		s.metrics.RecordFrameDrop(ctx, "busy")
		return
	}

	utt, err := s.seg.Process(frame)
	if err != nil {
		s.log.Warn("segmenter rejected frame", "err", err)
		return
	}
	if utt != nil {
		s.finalize(ctx, utt)
		return
	}

	switch {
	case s.seg.State() == segment.StateSpeaking && s.state != StateListening:
		s.state = StateListening
		s.emitListening(ctx)
	case s.seg.State() == segment.StateSilent && s.state == StateListening:
		// The segmenter discarded a too-short burst as noise. Return to
		// idle without an event; the next speech frame announces LISTENING
		// again, subject to the throttle.
		s.state = StateIdle
		s.cancelPartial()
	}
}

// emitListening announces the LISTENING transition, at most once per
// throttle window of wall time.
func (s *Session) emitListening(ctx context.Context) {
	if time.Since(s.lastListening) < s.cfg.ListeningThrottle {
		return
	}
	s.lastListening = time.Now()
	s.emit(ctx, NewStateEvent(StateListening))
}

// maybePartial submits an interim recognition over a snapshot of the
// utterance buffer. At most one is in flight; results carrying a stale
// generation are discarded on arrival.
func (s *Session) maybePartial(ctx context.Context) {
	if s.state != StateListening || s.processing || s.partialInflight {
		return
	}
	if s.seg.Buffered() < s.cfg.MinPartialBuffer {
		return
	}

	pcm := audio.Resample(s.seg.Snapshot(), s.cfg.SampleRate, stt.SampleRate)

	pctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	s.partialCancel = cancel
	s.partialInflight = true
	s.partialGen++
	gen := s.partialGen

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := partialResult{gen: gen}
		if err := s.cfg.Pool.Acquire(pctx); err != nil {
			res.err = err
		} else {
			res.text, res.err = s.cfg.Recognizer.Recognize(pctx, pcm)
			s.cfg.Pool.Release()
		}
		select {
		case s.partialResults <- res:
		case <-ctx.Done():
		}
	}()
}

// onPartialResult applies an interim recognition outcome. Stale results
// and failures are dropped; interim problems never reach the client.
func (s *Session) onPartialResult(ctx context.Context, res partialResult) {
	s.partialInflight = false
	if s.partialCancel != nil {
		s.partialCancel()
		s.partialCancel = nil
	}
	if res.gen != s.partialGen {
		// The utterance finalized or was discarded while this was in
		// flight.
		return
	}
	if res.err != nil {
		s.log.Debug("interim recognition failed", "err", res.err)
		return
	}
	if res.text == "" {
		return
	}
	s.metrics.PartialUpdates.Add(ctx, 1)
	s.emit(ctx, NewPartialTextEvent(res.text))
}

// cancelPartial invalidates and cancels any inflight interim recognition.
// Its result, if one still arrives, is dropped as stale.
func (s *Session) cancelPartial() {
	s.partialGen++
	if s.partialCancel != nil {
		s.partialCancel()
		s.partialCancel = nil
	}
}

// finalize closes out a completed utterance: interim work is invalidated,
// the state moves to THINKING, and the pipeline job goes to the pool.
func (s *Session) finalize(ctx context.Context, utt *segment.Utterance) {
	s.cancelPartial()
	s.processing = true
	s.state = StateThinking
	s.pipelineStarted = time.Now()
	s.emit(ctx, NewStateEvent(StateThinking))
	s.metrics.RecordUtterance(ctx, s.cfg.Transport)
	s.log.Debug("utterance finalized",
		"duration", utt.Duration(),
		"frames", utt.Frames,
		"speech_frames", utt.SpeechFrames,
	)

	pcm := audio.Resample(utt.PCM, s.cfg.SampleRate, stt.SampleRate)
	hist := make([]llm.Exchange, len(s.recent))
	copy(hist, s.recent)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.runPipeline(ctx, pcm, hist)
		select {
		case s.pipelineResults <- res:
		case <-ctx.Done():
		}
	}()
}

// onPipelineResult applies a finished pipeline: events out, history
// recorded, playback queued.
func (s *Session) onPipelineResult(ctx context.Context, res pipelineResult) {
	if res.err != nil {
		// Exactly one ERROR on the wire, then straight back to idle. The
		// utterance is not reprocessed.
		s.log.Error("pipeline failed", "reason", res.reason, "err", res.err)
		s.emit(ctx, NewErrorEvent(res.reason))
		s.emit(ctx, NewStateEvent(StateIdle))
		s.state = StateIdle
		s.processing = false
		return
	}

	if res.userText == "" {
		// Nothing was said: no reply, no error, straight back to idle.
		s.emit(ctx, NewStateEvent(StateIdle))
		s.state = StateIdle
		s.processing = false
		return
	}

	s.emit(ctx, NewResultEvent(res.userText, res.coachText))
	s.emit(ctx, NewVisemesEvent(res.visemes))
	s.recordExchange(ctx, res.userText, res.coachText)

	if len(res.audio) == 0 {
		s.emit(ctx, NewStateEvent(StateIdle))
		s.state = StateIdle
		s.processing = false
		return
	}

	s.playback = s.pac.Enqueue(res.audio)
	s.metrics.PipelineDuration.Record(ctx, time.Since(s.pipelineStarted).Seconds())
	s.emit(ctx, NewStateEvent(StateSpeaking))
	s.state = StateSpeaking
}

// onPlaybackDone fires once the pacer has wound down past the queued
// reply.
func (s *Session) onPlaybackDone(ctx context.Context) {
	s.playback = nil
	s.processing = false
	s.state = StateIdle
	s.emit(ctx, NewStateEvent(StateIdle))
}

// recordExchange adds a completed turn to the prompt window and, when a
// store is configured, archives it off the run loop.
func (s *Session) recordExchange(ctx context.Context, userText, coachText string) {
	s.recent = append(s.recent, llm.Exchange{UserText: userText, CoachText: coachText})
	if len(s.recent) > historyLimit {
		s.recent = s.recent[len(s.recent)-historyLimit:]
	}

	if s.cfg.History == nil {
		return
	}
	ex := history.Exchange{
		SessionID: s.id,
		UserText:  userText,
		CoachText: coachText,
		At:        time.Now().UTC(),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		if err := s.cfg.History.Append(cctx, ex); err != nil {
			s.metrics.RecordHistoryError(cctx, "append")
			s.log.Warn("history append failed", "err", err)
		}
	}()
}

// emit delivers ev to the event stream, giving up only when the session is
// torn down while the stream is full.
func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
