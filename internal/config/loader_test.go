package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/frontdesk/internal/config"
)

// minimalYAML is the smallest config that passes validation.
const minimalYAML = `
providers:
  stt:
    name: openai
  llm:
    name: openai
  tts:
    name: openai
`

func TestLoadFromReader_Minimal(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Driver != "" {
		t.Errorf("store.driver: got %q, want empty (memory)", cfg.Store.Driver)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "empty config needs providers",
			yaml:    ``,
			wantMsg: "providers.stt.name is required",
		},
		{
			name:    "missing tts",
			yaml:    "providers:\n  stt: {name: openai}\n  llm: {name: openai}\n",
			wantMsg: "providers.tts.name is required",
		},
		{
			name:    "bad log level",
			yaml:    minimalYAML + "server:\n  log_level: bananas\n",
			wantMsg: "server.log_level",
		},
		{
			name:    "tls without key",
			yaml:    minimalYAML + "server:\n  tls:\n    cert_file: /c.pem\n",
			wantMsg: "server.tls",
		},
		{
			name:    "negative timeout",
			yaml:    strings.Replace(minimalYAML, "  llm:\n    name: openai", "  llm:\n    name: openai\n    timeout: -1s", 1),
			wantMsg: "providers.llm.timeout",
		},
		{
			name:    "unknown store driver",
			yaml:    minimalYAML + "store:\n  driver: mysql\n",
			wantMsg: "store.driver",
		},
		{
			name:    "sqlite without dsn",
			yaml:    minimalYAML + "store:\n  driver: sqlite\n",
			wantMsg: "store.dsn is required",
		},
		{
			name:    "speed out of range",
			yaml:    minimalYAML + "agent:\n  speed: 7\n",
			wantMsg: "agent.speed",
		},
		{
			name:    "temperature out of range",
			yaml:    minimalYAML + "agent:\n  temperature: 3\n",
			wantMsg: "agent.temperature",
		},
		{
			name:    "negative max tokens",
			yaml:    minimalYAML + "agent:\n  max_tokens: -5\n",
			wantMsg: "agent.max_tokens",
		},
		{
			name:    "negative cooldown",
			yaml:    minimalYAML + "agent:\n  cooldown: -1s\n",
			wantMsg: "agent.cooldown",
		},
		{
			name:    "min above max utterance",
			yaml:    minimalYAML + "agent:\n  endpoint:\n    min_utterance: 10s\n    max_utterance: 9s\n",
			wantMsg: "min_utterance",
		},
		{
			name:    "negative resilience",
			yaml:    minimalYAML + "resilience:\n  max_failures: -1\n",
			wantMsg: "resilience",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error should mention %q, got: %v", tt.wantMsg, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
agent:
  temperature: 9
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "providers.stt", "providers.llm", "providers.tts", "agent.temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderNameOnlyWarns(t *testing.T) {
	t.Parallel()
	yaml := strings.ReplaceAll(minimalYAML, "name: openai", "name: my-gateway")
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Errorf("unknown provider names should only warn, got: %v", err)
	}
}

func TestValidate_PostgresWithDSN(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
store:
  driver: postgres
  dsn: postgres://frontdesk@localhost:5432/frontdesk?sslmode=disable
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Driver != config.StorePostgres {
		t.Errorf("driver: got %q", cfg.Store.Driver)
	}
}
