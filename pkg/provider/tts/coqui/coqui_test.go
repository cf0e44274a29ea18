package coqui_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/tts/coqui"
)

// makePCM builds n little-endian samples with a recognizable ramp.
func makePCM(n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(i*5-700)))
	}
	return pcm
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := coqui.New("")
	if err == nil {
		t.Fatal("New(\"\") error = nil, want non-nil")
	}
}

func TestSynthesize_StandardMode(t *testing.T) {
	pcm := makePCM(2205)
	var gotText, gotSpeaker, gotLanguage string

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tts", func(w http.ResponseWriter, r *http.Request) {
		gotText = r.URL.Query().Get("text")
		gotSpeaker = r.URL.Query().Get("speaker_id")
		gotLanguage = r.URL.Query().Get("language_id")
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(pcm, 22050, 1))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := coqui.New(srv.URL, coqui.WithLanguage("ja"), coqui.WithSpeakerID("p225"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := c.Synthesize(context.Background(), "こんにちは", -1)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if gotText != "こんにちは" {
		t.Errorf("text param = %q, want こんにちは", gotText)
	}
	if gotSpeaker != "p225" {
		t.Errorf("speaker_id param = %q, want p225", gotSpeaker)
	}
	if gotLanguage != "ja" {
		t.Errorf("language_id param = %q, want ja", gotLanguage)
	}
	if !bytes.Equal(res.Audio, pcm) {
		t.Error("Audio differs from the PCM payload the server returned")
	}
	if res.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", res.SampleRate)
	}
	if len(res.Phonemes.Phrases) != 0 {
		t.Error("Phonemes should be zero, coqui reports no timing")
	}
}

func TestSynthesize_XTTSMode(t *testing.T) {
	pcm := makePCM(2400)
	var gotBody map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tts_to_audio/", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode tts body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(pcm, 24000, 1))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := coqui.New(srv.URL,
		coqui.WithAPIMode(coqui.APIModeXTTS),
		coqui.WithLanguage("en"),
		coqui.WithSpeakerID("Claribel Dervla"),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res, err := c.Synthesize(context.Background(), "Hello there.", -1)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if gotBody["text"] != "Hello there." {
		t.Errorf("body text = %v, want Hello there.", gotBody["text"])
	}
	if gotBody["speaker_wav"] != "Claribel Dervla" {
		t.Errorf("body speaker_wav = %v, want Claribel Dervla", gotBody["speaker_wav"])
	}
	if gotBody["language"] != "en" {
		t.Errorf("body language = %v, want en", gotBody["language"])
	}
	if !bytes.Equal(res.Audio, pcm) {
		t.Error("Audio differs from the PCM payload the server returned")
	}
	if res.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", res.SampleRate)
	}
}

func TestSynthesize_XTTSMode_RequiresSpeakerID(t *testing.T) {
	c, err := coqui.New("http://localhost:8002", coqui.WithAPIMode(coqui.APIModeXTTS))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.Synthesize(context.Background(), "Hello", -1); err == nil {
		t.Fatal("Synthesize() error = nil, want non-nil without a speaker id")
	}
}

func TestSynthesize_EmptyText_ReturnsError(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.Synthesize(context.Background(), "   ", -1); err == nil {
		t.Fatal("Synthesize() error = nil, want non-nil")
	}
	if called {
		t.Error("server was called for empty text")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = c.Synthesize(context.Background(), "テスト", -1)
	if err == nil {
		t.Fatal("Synthesize() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %v, want mention of status 500", err)
	}
}

func TestSynthesize_StereoDownmixedToMono(t *testing.T) {
	mono := makePCM(220)
	// Duplicate each sample into both channels so the downmix average equals
	// the original mono signal.
	stereo := make([]byte, len(mono)*2)
	for i := 0; i+1 < len(mono); i += 2 {
		copy(stereo[i*2:], mono[i:i+2])
		copy(stereo[i*2+2:], mono[i:i+2])
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(stereo, 22050, 2))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	res, err := c.Synthesize(context.Background(), "テスト", -1)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !bytes.Equal(res.Audio, mono) {
		t.Error("stereo response was not downmixed to the original mono signal")
	}
}

func TestListVoices_StandardMultiSpeaker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /details", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model_name": "tts_models/en/vctk/vits", "language": "en", "speakers": ["p240", "p225", "p226"]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	voices, err := c.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error = %v", err)
	}
	if len(voices) != 3 {
		t.Fatalf("voices = %d, want 3", len(voices))
	}
	// Sorted for deterministic output.
	if voices[0].ID != "p225" || voices[2].ID != "p240" {
		t.Errorf("voices = %+v, want sorted p225..p240", voices)
	}
}

func TestListVoices_StandardSingleSpeaker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /details", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model_name": "tts_models/ja/kokoro/tacotron2-DDC", "language": "ja"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := coqui.New(srv.URL)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	voices, err := c.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error = %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("voices = %d, want 1", len(voices))
	}
	if voices[0].Name != "tts_models/ja/kokoro/tacotron2-DDC" {
		t.Errorf("voices[0].Name = %q, want the model name", voices[0].Name)
	}
}

func TestListVoices_XTTS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /studio_speakers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Zofija": {"speaker_embedding": []}, "Ana Florence": {"speaker_embedding": []}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := coqui.New(srv.URL, coqui.WithAPIMode(coqui.APIModeXTTS))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	voices, err := c.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error = %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("voices = %d, want 2", len(voices))
	}
	if voices[0].ID != "Ana Florence" || voices[1].ID != "Zofija" {
		t.Errorf("voices = %+v, want sorted by name", voices)
	}
}

func TestCloneVoice_XTTS(t *testing.T) {
	var sampleCount int
	mux := http.NewServeMux()
	mux.HandleFunc("POST /clone_speaker", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart form: %v", err)
		}
		sampleCount = len(r.MultipartForm.File["wav_files"])
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name": "cloned-7", "status": "ok"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := coqui.New(srv.URL, coqui.WithAPIMode(coqui.APIModeXTTS), coqui.WithSpeakerID("x"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	samples := [][]byte{
		audio.EncodeWAV(makePCM(220), 22050, 1),
		audio.EncodeWAV(makePCM(220), 22050, 1),
	}
	voice, err := c.CloneVoice(context.Background(), samples)
	if err != nil {
		t.Fatalf("CloneVoice() error = %v", err)
	}
	if sampleCount != 2 {
		t.Errorf("uploaded samples = %d, want 2", sampleCount)
	}
	if voice.ID != "cloned-7" {
		t.Errorf("voice.ID = %q, want cloned-7", voice.ID)
	}
}

func TestCloneVoice_StandardMode_ReturnsError(t *testing.T) {
	c, err := coqui.New("http://localhost:5002")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.CloneVoice(context.Background(), [][]byte{{1, 2}}); err == nil {
		t.Fatal("CloneVoice() error = nil in standard mode, want non-nil")
	}
}

func TestCloneVoice_NoSamples_ReturnsError(t *testing.T) {
	c, err := coqui.New("http://localhost:8002", coqui.WithAPIMode(coqui.APIModeXTTS))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := c.CloneVoice(context.Background(), nil); err == nil {
		t.Fatal("CloneVoice() error = nil with no samples, want non-nil")
	}
}
