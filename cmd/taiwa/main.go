// Command taiwa is the main entry point for the Taiwa conversation coach
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/taiwalabs/taiwa/internal/app"
	"github.com/taiwalabs/taiwa/internal/config"
	"github.com/taiwalabs/taiwa/internal/observe"
	discordvoice "github.com/taiwalabs/taiwa/internal/transport/discord"
	"github.com/taiwalabs/taiwa/pkg/provider/embeddings"
	ollamaembed "github.com/taiwalabs/taiwa/pkg/provider/embeddings/ollama"
	oaembed "github.com/taiwalabs/taiwa/pkg/provider/embeddings/openai"
	"github.com/taiwalabs/taiwa/pkg/provider/llm"
	"github.com/taiwalabs/taiwa/pkg/provider/llm/anyllm"
	oaillm "github.com/taiwalabs/taiwa/pkg/provider/llm/openai"
	"github.com/taiwalabs/taiwa/pkg/provider/stt"
	"github.com/taiwalabs/taiwa/pkg/provider/stt/deepgram"
	"github.com/taiwalabs/taiwa/pkg/provider/stt/whisper"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
	"github.com/taiwalabs/taiwa/pkg/provider/tts/coqui"
	"github.com/taiwalabs/taiwa/pkg/provider/tts/elevenlabs"
	"github.com/taiwalabs/taiwa/pkg/provider/tts/voicevox"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "taiwa: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "taiwa: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("taiwa starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "taiwa",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders(providers)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Discord voice binding (optional) ──────────────────────────────────────
	var (
		dg    *discordgo.Session
		voice *discordvoice.Binding
	)
	if cfg.Discord.Enabled {
		dg, err = discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			slog.Error("failed to create discord session", "err", err)
			return 1
		}
		dg.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildVoiceStates |
			discordgo.IntentsGuildMessages

		if err := dg.Open(); err != nil {
			slog.Error("failed to connect to discord", "err", err)
			return 1
		}

		voice = discordvoice.New(dg, discordvoice.Config{
			GuildID:       cfg.Discord.GuildID,
			ChannelID:     cfg.Discord.ChannelID,
			TextChannelID: cfg.Discord.TextChannelID,
		}, application.Sessions())
		if err := voice.Start(ctx); err != nil {
			slog.Error("failed to join voice channel", "err", err)
			_ = dg.Close()
			return 1
		}
		slog.Info("discord binding connected",
			"guild_id", cfg.Discord.GuildID,
			"channel_id", cfg.Discord.ChannelID,
		)
	}

	// ── Config watcher (hot reload) ───────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Any() {
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.SessionChanged || d.AudioChanged {
			application.ApplyConfig(new)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	// Leave the voice channel first so Discord sees a clean exit.
	if voice != nil {
		if err := voice.Close(); err != nil {
			slog.Warn("voice binding close error", "err", err)
		}
	}
	if dg != nil {
		if err := dg.Close(); err != nil {
			slog.Warn("discord close error", "err", err)
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider kinds to the implementations that ship with
// Taiwa. Used for startup logging.
var builtinProviders = map[string][]string{
	"recognizer":  {"whisper", "whisper-native", "deepgram"},
	"responder":   {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"synthesizer": {"voicevox", "elevenlabs", "coqui"},
	"embeddings":  {"openai", "ollama"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Recognizers ───────────────────────────────────────────────────────────

	reg.RegisterRecognizer("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		serverURL := entry.BaseURL
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(serverURL, opts...)
	})

	reg.RegisterRecognizer("whisper-native", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		modelPath := entry.Model
		if p := optString(entry.Options, "model_path"); p != "" {
			modelPath = p
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterRecognizer("deepgram", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Responders ────────────────────────────────────────────────────────────

	// The direct OpenAI client; everything else goes through any-llm-go.
	reg.RegisterResponder("openai", func(entry config.ProviderEntry) (llm.Responder, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if prompt := optString(entry.Options, "system_prompt"); prompt != "" {
			opts = append(opts, oaillm.WithSystemPrompt(prompt))
		}
		if temp, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, oaillm.WithTemperature(temp))
		}
		if n, ok := optInt(entry.Options, "max_tokens"); ok {
			opts = append(opts, oaillm.WithMaxTokens(n))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "ollama",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterResponder(providerName, func(entry config.ProviderEntry) (llm.Responder, error) {
			var opts []anyllm.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllm.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllm.WithBaseURL(entry.BaseURL))
			}
			if prompt := optString(entry.Options, "system_prompt"); prompt != "" {
				opts = append(opts, anyllm.WithSystemPrompt(prompt))
			}
			if temp, ok := optFloat(entry.Options, "temperature"); ok {
				opts = append(opts, anyllm.WithTemperature(temp))
			}
			if n, ok := optInt(entry.Options, "max_tokens"); ok {
				opts = append(opts, anyllm.WithMaxTokens(n))
			}
			return anyllm.New(entry.Name, entry.Model, opts...)
		})
	}

	// ── Synthesizers ──────────────────────────────────────────────────────────

	reg.RegisterSynthesizer("voicevox", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		serverURL := entry.BaseURL
		if serverURL == "" {
			serverURL = "http://localhost:50021"
		}
		var opts []voicevox.Option
		if id, ok := optInt(entry.Options, "speaker"); ok {
			opts = append(opts, voicevox.WithDefaultSpeaker(id))
		}
		if rate, ok := optInt(entry.Options, "sampling_rate"); ok {
			opts = append(opts, voicevox.WithOutputSamplingRate(rate))
		}
		return voicevox.New(serverURL, opts...)
	})

	reg.RegisterSynthesizer("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(entry.APIKey, optString(entry.Options, "voice_id"), opts...)
	})

	reg.RegisterSynthesizer("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		serverURL := entry.BaseURL
		if serverURL == "" {
			serverURL = "http://localhost:5002"
		}
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if id := optString(entry.Options, "speaker_id"); id != "" {
			opts = append(opts, coqui.WithSpeakerID(id))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(serverURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Embedder, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Embedder, error) {
		var opts []ollamaembed.Option
		if dims, ok := optInt(entry.Options, "dimensions"); ok {
			opts = append(opts, ollamaembed.WithDimensions(dims))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. The recognizer, responder, and synthesizer are mandatory;
// embeddings are optional and only feed semantic recall.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{Speaker: -1}

	recName := cfg.Providers.Recognizer.Name
	if recName == "" {
		return nil, errors.New("providers.recognizer.name is required")
	}
	rec, err := reg.CreateRecognizer(cfg.Providers.Recognizer)
	if err != nil {
		return nil, fmt.Errorf("create recognizer %q: %w", recName, err)
	}
	ps.Recognizer = rec
	ps.RecognizerName = recName
	slog.Info("provider created", "kind", "recognizer", "name", recName)

	respName := cfg.Providers.Responder.Name
	if respName == "" {
		return nil, errors.New("providers.responder.name is required")
	}
	resp, err := reg.CreateResponder(cfg.Providers.Responder)
	if err != nil {
		return nil, fmt.Errorf("create responder %q: %w", respName, err)
	}
	ps.Responder = resp
	ps.ResponderName = respName
	slog.Info("provider created", "kind", "responder", "name", respName)

	synName := cfg.Providers.Synthesizer.Name
	if synName == "" {
		return nil, errors.New("providers.synthesizer.name is required")
	}
	syn, err := reg.CreateSynthesizer(cfg.Providers.Synthesizer)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer %q: %w", synName, err)
	}
	ps.Synthesizer = syn
	ps.SynthesizerName = synName
	slog.Info("provider created", "kind", "synthesizer", "name", synName)

	if name := cfg.Providers.Embeddings.Name; name != "" {
		emb, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = emb
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	if id, ok := optInt(cfg.Providers.Synthesizer.Options, "speaker"); ok {
		ps.Speaker = id
	}

	return ps, nil
}

// closeProviders releases providers holding external resources. The native
// whisper recognizer keeps its model weights loaded until closed.
func closeProviders(ps *app.Providers) {
	for _, candidate := range []any{ps.Recognizer, ps.Responder, ps.Synthesizer, ps.Embeddings} {
		if c, ok := candidate.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Taiwa — startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Recognizer", cfg.Providers.Recognizer.Name, cfg.Providers.Recognizer.Model)
	printProvider("Responder", cfg.Providers.Responder.Name, cfg.Providers.Responder.Model)
	printProvider("Synthesizer", cfg.Providers.Synthesizer.Name, cfg.Providers.Synthesizer.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if cfg.History.Enabled {
		fmt.Printf("║  History         : %-19s ║\n", string(cfg.History.EffectiveDriver()))
	} else {
		fmt.Printf("║  History         : %-19s ║\n", "(disabled)")
	}
	if cfg.Discord.Enabled {
		fmt.Printf("║  Discord         : %-19s ║\n", "connected")
	} else {
		fmt.Printf("║  Discord         : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Max sessions    : %-19d ║\n", cfg.Session.Limit())
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger on a swappable level so the config
// watcher can change verbosity without a restart.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an integer value from a provider Options map[string]any.
func optInt(opts map[string]any, key string) (int, bool) {
	if opts == nil {
		return 0, false
	}
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// optFloat extracts a float value from a provider Options map[string]any.
func optFloat(opts map[string]any, key string) (float64, bool) {
	if opts == nil {
		return 0, false
	}
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
