package session

import (
	"context"
	"fmt"
	"time"

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/llm"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
	"github.com/taiwalabs/taiwa/pkg/viseme"
)

// partialResult is an interim recognition outcome, tagged with the
// generation it was submitted under.
type partialResult struct {
	gen  uint64
	text string
	err  error
}

// pipelineResult is the outcome of one utterance pipeline. An empty
// userText with a nil err means the recognizer heard nothing usable.
type pipelineResult struct {
	userText  string
	coachText string

	// audio is the reply resampled to the transport rate. Empty when the
	// synthesizer produced no audio.
	audio   []byte
	visemes []viseme.Event

	// reason is the client-facing failure label; err carries the chain.
	reason string
	err    error
}

// runPipeline executes recognize → respond → synthesize for one finalized
// utterance. It runs off the run loop and holds one pool slot for the full
// span. pcm is the utterance already resampled for the recognizer; hist is
// the prompt window snapshotted at finalization.
func (s *Session) runPipeline(ctx context.Context, pcm []byte, hist []llm.Exchange) pipelineResult {
	if err := s.cfg.Pool.Acquire(ctx); err != nil {
		return pipelineResult{reason: "cancelled", err: err}
	}
	defer s.cfg.Pool.Release()

	userText, err := s.recognize(ctx, pcm)
	if err != nil {
		return pipelineResult{reason: "recognition failed", err: err}
	}
	if userText == "" {
		return pipelineResult{}
	}

	hist = s.withRecall(ctx, userText, hist)

	coachText, err := s.respond(ctx, userText, hist)
	if err != nil {
		return pipelineResult{userText: userText, reason: "response failed", err: err}
	}

	res, err := s.synthesize(ctx, coachText)
	if err != nil {
		return pipelineResult{userText: userText, reason: "synthesis failed", err: err}
	}

	return pipelineResult{
		userText:  userText,
		coachText: coachText,
		audio:     audio.Resample(res.Audio, res.SampleRate, s.cfg.SampleRate),
		visemes:   viseme.Build(res.Phonemes),
	}
}

func (s *Session) recognize(ctx context.Context, pcm []byte) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.cfg.Recognizer.Recognize(cctx, pcm)
	s.metrics.RecognizeDuration.Record(ctx, time.Since(start).Seconds())
	s.observeCall(ctx, s.cfg.RecognizerName, "recognize", err)
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}

func (s *Session) respond(ctx context.Context, userText string, hist []llm.Exchange) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.cfg.Responder.Respond(cctx, userText, hist)
	s.metrics.RespondDuration.Record(ctx, time.Since(start).Seconds())
	s.observeCall(ctx, s.cfg.ResponderName, "respond", err)
	if err != nil {
		return "", fmt.Errorf("respond: %w", err)
	}
	return llm.TrimForSpeech(reply), nil
}

func (s *Session) synthesize(ctx context.Context, text string) (tts.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.cfg.Synthesizer.Synthesize(cctx, text, s.cfg.Speaker)
	s.metrics.SynthesizeDuration.Record(ctx, time.Since(start).Seconds())
	s.observeCall(ctx, s.cfg.SynthesizerName, "synthesize", err)
	if err != nil {
		return tts.Result{}, fmt.Errorf("synthesize: %w", err)
	}
	return res, nil
}

// withRecall merges semantically similar past exchanges ahead of the
// session's recent window. Recall is best-effort: a store failure logs,
// counts, and leaves the history unchanged.
func (s *Session) withRecall(ctx context.Context, userText string, hist []llm.Exchange) []llm.Exchange {
	if s.cfg.History == nil || s.cfg.RecallK <= 0 {
		return hist
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	similar, err := s.cfg.History.Similar(cctx, userText, s.cfg.RecallK)
	if err != nil {
		s.metrics.RecordHistoryError(ctx, "recall")
		s.log.Warn("semantic recall failed", "err", err)
		return hist
	}
	if len(similar) == 0 {
		return hist
	}

	merged := make([]llm.Exchange, 0, len(similar)+len(hist))
	for _, ex := range similar {
		if containsExchange(hist, ex.UserText, ex.CoachText) {
			continue
		}
		merged = append(merged, llm.Exchange{UserText: ex.UserText, CoachText: ex.CoachText})
	}
	return append(merged, hist...)
}

// containsExchange reports whether hist already carries the exact turn.
func containsExchange(hist []llm.Exchange, userText, coachText string) bool {
	for _, ex := range hist {
		if ex.UserText == userText && ex.CoachText == coachText {
			return true
		}
	}
	return false
}

// observeCall records the request and error counters for one provider
// call.
func (s *Session) observeCall(ctx context.Context, provider, kind string, err error) {
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, provider, kind, "error")
		s.metrics.RecordProviderError(ctx, provider, kind)
		return
	}
	s.metrics.RecordProviderRequest(ctx, provider, kind, "ok")
}
