package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/llm"
	"github.com/taiwalabs/taiwa/pkg/provider/stt"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
	"github.com/taiwalabs/taiwa/pkg/viseme"
)

// uploadField is the multipart form field carrying the WAV file.
const uploadField = "file"

// defaultReplyRate is reported when the synthesizer leaves the rate unset.
const defaultReplyRate = 24000

// coachResponse is the JSON body of one completed exchange. Audio is a
// base64 RIFF/WAVE file at SampleRate.
type coachResponse struct {
	UserText   string         `json:"user_text"`
	CoachText  string         `json:"coach_text"`
	Audio      string         `json:"audio"`
	SampleRate int            `json:"sample_rate"`
	Visemes    []viseme.Event `json:"visemes"`
}

// handleCoach runs one uploaded utterance through recognize → respond →
// synthesize and returns the exchange. The upload is a WAV file, either as
// the raw request body or as the "file" field of a multipart form; an
// optional speaker query parameter picks the reply voice.
func (s *Server) handleCoach(w http.ResponseWriter, r *http.Request) {
	speaker := s.speaker
	if q := r.URL.Query().Get("speaker"); q != "" {
		id, err := strconv.Atoi(q)
		if err != nil || id < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "speaker must be a non-negative integer"})
			return
		}
		speaker = id
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	wav, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	pcm, err := extractPCM(wav)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx := r.Context()

	userText, err := s.recognize(ctx, pcm)
	if err != nil {
		s.log.Error("coach request failed", "stage", "recognize", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "recognition failed"})
		return
	}
	if userText == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "no speech recognized"})
		return
	}

	coachText, err := s.respond(ctx, userText)
	if err != nil {
		s.log.Error("coach request failed", "stage", "respond", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "response failed"})
		return
	}

	res, err := s.synthesize(ctx, coachText, speaker)
	if err != nil {
		s.log.Error("coach request failed", "stage", "synthesize", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "synthesis failed"})
		return
	}

	rate := res.SampleRate
	if rate <= 0 {
		rate = defaultReplyRate
	}
	writeJSON(w, http.StatusOK, coachResponse{
		UserText:   userText,
		CoachText:  coachText,
		Audio:      base64.StdEncoding.EncodeToString(audio.EncodeWAV(res.Audio, rate, 1)),
		SampleRate: rate,
		Visemes:    viseme.Build(res.Phonemes),
	})
}

// readUpload returns the WAV bytes from the request: the "file" field when
// the body is a multipart form, the raw body otherwise.
func readUpload(r *http.Request) ([]byte, error) {
	ct := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)
	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		if len(data) == 0 {
			return nil, errors.New("empty request body")
		}
		return data, nil
	}

	file, _, err := r.FormFile(uploadField)
	if err != nil {
		return nil, fmt.Errorf("multipart field %q: %w", uploadField, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

// extractPCM pulls the PCM payload out of a WAV container, downmixes stereo
// to mono, and resamples to the recognizer's rate.
func extractPCM(wav []byte) ([]byte, error) {
	info, err := audio.ParseWAV(wav)
	if err != nil {
		return nil, err
	}

	pcm := info.PCM(wav)
	switch info.Channels {
	case 1:
	case 2:
		pcm = audio.StereoToMono(pcm)
	default:
		return nil, fmt.Errorf("api: unsupported channel count %d", info.Channels)
	}
	return audio.Resample(pcm, info.SampleRate, stt.SampleRate), nil
}

func (s *Server) recognize(ctx context.Context, pcm []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.rec.Recognize(ctx, pcm)
}

// respond generates the coach reply and trims it for speech. The offline
// endpoint is stateless, so the responder sees no history.
func (s *Server) respond(ctx context.Context, userText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	reply, err := s.resp.Respond(ctx, userText, nil)
	if err != nil {
		return "", err
	}
	return llm.TrimForSpeech(reply), nil
}

func (s *Server) synthesize(ctx context.Context, text string, speaker int) (tts.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.syn.Synthesize(ctx, text, speaker)
}
