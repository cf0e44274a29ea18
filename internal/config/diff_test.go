package config_test

import (
	"testing"

	"github.com/taiwalabs/taiwa/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: config.LogInfo},
		Session: config.SessionConfig{MaxSessions: 8},
	}
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if !d.Any() {
		t.Error("expected Any()=true")
	}
}

func TestDiff_SessionChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Session: config.SessionConfig{PartialIntervalMs: 1000}}
	new := &config.Config{Session: config.SessionConfig{PartialIntervalMs: 500}}

	d := config.Diff(old, new)
	if !d.SessionChanged {
		t.Error("expected SessionChanged=true")
	}
	if d.AudioChanged {
		t.Error("expected AudioChanged=false")
	}
}

func TestDiff_AudioChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Audio: config.AudioConfig{SilenceMs: 600}}
	new := &config.Config{Audio: config.AudioConfig{SilenceMs: 800}}

	d := config.Diff(old, new)
	if !d.AudioChanged {
		t.Error("expected AudioChanged=true")
	}
	if d.SessionChanged {
		t.Error("expected SessionChanged=false")
	}
}

func TestDiff_ExplicitDefaultAggressivenessIsNotAChange(t *testing.T) {
	t.Parallel()
	two := 2
	old := &config.Config{Audio: config.AudioConfig{}}
	new := &config.Config{Audio: config.AudioConfig{VADAggressiveness: &two}}

	// nil and an explicit 2 resolve to the same effective value.
	d := config.Diff(old, new)
	if d.AudioChanged {
		t.Error("expected AudioChanged=false for equal effective aggressiveness")
	}
}

func TestDiff_AggressivenessChanged(t *testing.T) {
	t.Parallel()
	zero, three := 0, 3
	old := &config.Config{Audio: config.AudioConfig{VADAggressiveness: &zero}}
	new := &config.Config{Audio: config.AudioConfig{VADAggressiveness: &three}}

	d := config.Diff(old, new)
	if !d.AudioChanged {
		t.Error("expected AudioChanged=true")
	}
}

func TestDiff_IgnoresRestartOnlyFields(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{Responder: config.ProviderEntry{Name: "openai"}},
		History:   config.HistoryConfig{Driver: config.HistoryMem},
	}
	new := &config.Config{
		Providers: config.ProvidersConfig{Responder: config.ProviderEntry{Name: "anthropic"}},
		History:   config.HistoryConfig{Driver: config.HistoryPostgres, DSN: "postgres://localhost/taiwa"},
	}

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("provider and history changes require a restart and must not be tracked, got %+v", d)
	}
}
