package config_test

import (
	"strings"
	"testing"

	"github.com/taiwalabs/taiwa/internal/config"
)

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/taiwa/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for tls without key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()
	yaml := `
history:
  enabled: true
  driver: postgres
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for postgres driver without dsn, got nil")
	}
	if !strings.Contains(err.Error(), "dsn") {
		t.Errorf("error should mention dsn, got: %v", err)
	}
}

func TestValidate_InvalidHistoryDriver(t *testing.T) {
	t.Parallel()
	yaml := `
history:
  driver: redis
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid history driver, got nil")
	}
	if !strings.Contains(err.Error(), "driver") {
		t.Errorf("error should mention driver, got: %v", err)
	}
}

func TestValidate_RecallRequiresPostgres(t *testing.T) {
	t.Parallel()
	yaml := `
history:
  enabled: true
  driver: mem
  recall_enabled: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for recall with mem driver, got nil")
	}
	if !strings.Contains(err.Error(), "recall_enabled") {
		t.Errorf("error should mention recall_enabled, got: %v", err)
	}
}

func TestValidate_DiscordRequiresToken(t *testing.T) {
	t.Parallel()
	yaml := `
discord:
  enabled: true
  guild_id: "123"
  channel_id: "456"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for enabled discord without token, got nil")
	}
	if !strings.Contains(err.Error(), "token") {
		t.Errorf("error should mention token, got: %v", err)
	}
}

func TestValidate_DiscordRequiresChannel(t *testing.T) {
	t.Parallel()
	yaml := `
discord:
  enabled: true
  token: "bot-token"
  guild_id: "123"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for enabled discord without channel_id, got nil")
	}
	if !strings.Contains(err.Error(), "channel_id") {
		t.Errorf("error should mention channel_id, got: %v", err)
	}
}

func TestValidate_DisabledDiscordSkipsChecks(t *testing.T) {
	t.Parallel()
	yaml := `
discord:
  enabled: false
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error for disabled discord: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
audio:
  frame_ms: 15
history:
  driver: postgres
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "frame_ms") {
		t.Errorf("error should mention frame_ms, got: %v", err)
	}
	if !strings.Contains(errStr, "dsn") {
		t.Errorf("error should mention dsn, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	responderNames := config.ValidProviderNames["responder"]
	if len(responderNames) == 0 {
		t.Fatal("ValidProviderNames[\"responder\"] should not be empty")
	}
	// Check that "openai" is in the responder list.
	found := false
	for _, n := range responderNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"responder\"] should contain \"openai\"")
	}
}
