package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"recognizer":  {"whisper", "whisper-native", "deepgram"},
	"responder":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"synthesizer": {"voicevox", "elevenlabs"},
	"embeddings":  {"openai", "ollama"},
}

// validSampleRates are the inbound PCM rates the segmenter frame math
// supports.
var validSampleRates = []int{8000, 16000, 24000, 32000, 48000}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate != 0 && !slices.Contains(validSampleRates, cfg.Audio.SampleRate) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported; valid values: %v", cfg.Audio.SampleRate, validSampleRates))
	}
	if f := cfg.Audio.FrameMs; f != 0 && f != 10 && f != 20 && f != 30 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 30", f))
	}
	if cfg.Audio.SilenceMs < 0 {
		errs = append(errs, fmt.Errorf("audio.silence_ms %d must not be negative", cfg.Audio.SilenceMs))
	}
	if cfg.Audio.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("audio.min_speech_ms %d must not be negative", cfg.Audio.MinSpeechMs))
	}
	if a := cfg.Audio.VADAggressiveness; a != nil && (*a < 0 || *a > 3) {
		errs = append(errs, fmt.Errorf("audio.vad_aggressiveness %d is out of range [0, 3]", *a))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("recognizer", cfg.Providers.Recognizer.Name)
	validateProviderName("responder", cfg.Providers.Responder.Name)
	validateProviderName("synthesizer", cfg.Providers.Synthesizer.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.Recognizer.Name == "" || cfg.Providers.Responder.Name == "" || cfg.Providers.Synthesizer.Name == "" {
		slog.Warn("recognizer, responder, and synthesizer are all required for live sessions; unset stages will fail at startup")
	}

	// Session
	if cfg.Session.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("session.max_sessions %d must not be negative", cfg.Session.MaxSessions))
	}
	if cfg.Session.PartialIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("session.partial_interval_ms %d must not be negative", cfg.Session.PartialIntervalMs))
	}
	if cfg.Session.MinPartialMs < 0 {
		errs = append(errs, fmt.Errorf("session.min_partial_ms %d must not be negative", cfg.Session.MinPartialMs))
	}
	if cfg.Session.ListeningThrottleMs < 0 {
		errs = append(errs, fmt.Errorf("session.listening_throttle_ms %d must not be negative", cfg.Session.ListeningThrottleMs))
	}
	if cfg.Session.CallTimeoutS < 0 {
		errs = append(errs, fmt.Errorf("session.call_timeout_s %d must not be negative", cfg.Session.CallTimeoutS))
	}

	// History
	if cfg.History.Driver != "" && !cfg.History.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("history.driver %q is invalid; valid values: mem, postgres", cfg.History.Driver))
	}
	if cfg.History.EffectiveDriver() == HistoryPostgres && cfg.History.DSN == "" {
		errs = append(errs, errors.New("history.dsn is required when driver is postgres"))
	}
	if cfg.History.RecallK < 0 {
		errs = append(errs, fmt.Errorf("history.recall_k %d must not be negative", cfg.History.RecallK))
	}
	if cfg.History.RecallEnabled {
		if cfg.History.EffectiveDriver() != HistoryPostgres {
			errs = append(errs, errors.New("history.recall_enabled requires the postgres driver"))
		}
		if cfg.Providers.Embeddings.Name == "" {
			slog.Warn("history.recall_enabled is set but providers.embeddings is not configured; recall queries will return nothing")
		}
	}

	// Discord
	if cfg.Discord.Enabled {
		if cfg.Discord.Token == "" {
			errs = append(errs, errors.New("discord.token is required when discord is enabled"))
		}
		if cfg.Discord.GuildID == "" {
			errs = append(errs, errors.New("discord.guild_id is required when discord is enabled"))
		}
		if cfg.Discord.ChannelID == "" {
			errs = append(errs, errors.New("discord.channel_id is required when discord is enabled"))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
