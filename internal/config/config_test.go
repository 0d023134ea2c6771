package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	llmmock "github.com/MrWong99/frontdesk/pkg/provider/llm/mock"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	sttmock "github.com/MrWong99/frontdesk/pkg/provider/stt/mock"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
	ttsmock "github.com/MrWong99/frontdesk/pkg/provider/tts/mock"
	"github.com/MrWong99/frontdesk/pkg/provider/vad"
	"github.com/MrWong99/frontdesk/pkg/provider/vad/energy"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  allowed_origins: ["localhost:*"]
providers:
  stt:
    name: groq
    api_key: ${FRONTDESK_TEST_KEY}
    model: whisper-large-v3
    timeout: 15s
  llm:
    name: groq
    api_key: ${FRONTDESK_TEST_KEY}
    model: llama-3.1-8b-instant
  tts:
    name: groq
    api_key: ${FRONTDESK_TEST_KEY}
    model: playai-tts
    options:
      format: mp3
  vad:
    name: energy
store:
  driver: sqlite
  dsn: /var/lib/frontdesk/salon.db
agent:
  name: Maya
  business: Glamour Salon
  greeting: "Hey there!"
  voice: Fritz-PlayAI
  speed: 0.95
  temperature: 0.8
  max_tokens: 130
  escalation_phrases: ["let me check"]
  cooldown: 500ms
  poll_interval: 2s
  endpoint:
    min_utterance: 1.5s
    trailing_silence: 800ms
    max_utterance: 9s
    energy_threshold: 500
resilience:
  max_failures: 3
  reset_timeout: 20s
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Setenv("FRONTDESK_TEST_KEY", "gsk-secret")

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server: got %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "localhost:*" {
		t.Errorf("allowed_origins: got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Providers.STT.APIKey != "gsk-secret" || cfg.Providers.LLM.APIKey != "gsk-secret" {
		t.Errorf("api keys were not expanded: stt=%q llm=%q", cfg.Providers.STT.APIKey, cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.STT.Timeout != 15*time.Second {
		t.Errorf("stt timeout: got %v, want 15s", cfg.Providers.STT.Timeout)
	}
	if cfg.Providers.TTS.Options["format"] != "mp3" {
		t.Errorf("tts options: got %v", cfg.Providers.TTS.Options)
	}
	if cfg.Store.Driver != config.StoreSQLite || cfg.Store.DSN != "/var/lib/frontdesk/salon.db" {
		t.Errorf("store: got %+v", cfg.Store)
	}

	a := cfg.Agent
	if a.Name != "Maya" || a.Business != "Glamour Salon" || a.Voice != "Fritz-PlayAI" {
		t.Errorf("agent identity: got %+v", a)
	}
	if a.Speed != 0.95 || a.Temperature != 0.8 || a.MaxTokens != 130 {
		t.Errorf("agent tuning: speed=%v temperature=%v max_tokens=%d", a.Speed, a.Temperature, a.MaxTokens)
	}
	if a.Cooldown != 500*time.Millisecond || a.PollInterval != 2*time.Second {
		t.Errorf("agent timing: cooldown=%v poll=%v", a.Cooldown, a.PollInterval)
	}
	want := config.EndpointConfig{
		MinUtterance:    1500 * time.Millisecond,
		TrailingSilence: 800 * time.Millisecond,
		MaxUtterance:    9 * time.Second,
		EnergyThreshold: 500,
	}
	if a.Endpoint != want {
		t.Errorf("endpoint: got %+v, want %+v", a.Endpoint, want)
	}
	if cfg.Resilience.MaxFailures != 3 || cfg.Resilience.ResetTimeout != 20*time.Second {
		t.Errorf("resilience: got %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	yaml := minimalYAML + `
agent:
  nickname: Maya
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-example")
	cfg, err := config.Load("../../frontdesk.example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "gsk-example" {
		t.Errorf("api key not expanded: %q", cfg.Providers.LLM.APIKey)
	}
	if cfg.Store.Driver != config.StoreSQLite || cfg.Agent.Endpoint.TrailingSilence != 800*time.Millisecond {
		t.Errorf("unexpected values: store=%q trailing=%s", cfg.Store.Driver, cfg.Agent.Endpoint.TrailingSilence)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/frontdesk.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error(`"verbose" should be invalid`)
	}
}

func TestStoreDriver_IsValid(t *testing.T) {
	for _, d := range []config.StoreDriver{config.StoreMemory, config.StoreSQLite, config.StorePostgres} {
		if !d.IsValid() {
			t.Errorf("%q should be valid", d)
		}
	}
	if config.StoreDriver("mysql").IsValid() {
		t.Error(`"mysql" should be invalid`)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	tests := []struct {
		kind string
		call func() error
	}{
		{"stt", func() error { _, err := reg.CreateSTT(entry); return err }},
		{"llm", func() error { _, err := reg.CreateLLM(entry); return err }},
		{"tts", func() error { _, err := reg.CreateTTS(entry); return err }},
		{"vad", func() error { _, err := reg.CreateVAD(entry); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, config.ErrProviderNotRegistered) {
				t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
			}
			if err != nil && !strings.Contains(err.Error(), tt.kind) {
				t.Errorf("error should name the kind %q: %v", tt.kind, err)
			}
		})
	}
}

func TestRegistry_Registered(t *testing.T) {
	reg := config.NewRegistry()
	wantSTT := &sttmock.Provider{}
	wantLLM := &llmmock.Provider{}
	wantTTS := &ttsmock.Provider{}
	wantVAD := energy.New()

	var gotEntry config.ProviderEntry
	reg.RegisterSTT("stub", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return wantSTT, nil
	})
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return wantLLM, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })
	reg.RegisterVAD("stub", func(config.ProviderEntry) (vad.Engine, error) { return wantVAD, nil })

	entry := config.ProviderEntry{Name: "stub", Model: "m1"}
	if p, err := reg.CreateSTT(entry); err != nil || p != wantSTT {
		t.Errorf("CreateSTT = %v, %v", p, err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received entry %+v", gotEntry)
	}
	if p, err := reg.CreateLLM(entry); err != nil || p != wantLLM {
		t.Errorf("CreateLLM = %v, %v", p, err)
	}
	if p, err := reg.CreateTTS(entry); err != nil || p != wantTTS {
		t.Errorf("CreateTTS = %v, %v", p, err)
	}
	if p, err := reg.CreateVAD(entry); err != nil || p != wantVAD {
		t.Errorf("CreateVAD = %v, %v", p, err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	boom := errors.New("bad api key")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("expected factory error, got: %v", err)
	}
}

func TestRegistry_OverwritesRegistration(t *testing.T) {
	reg := config.NewRegistry()
	first, second := &ttsmock.Provider{}, &ttsmock.Provider{}
	reg.RegisterTTS("x", func(config.ProviderEntry) (tts.Provider, error) { return first, nil })
	reg.RegisterTTS("x", func(config.ProviderEntry) (tts.Provider, error) { return second, nil })

	if p, _ := reg.CreateTTS(config.ProviderEntry{Name: "x"}); p != second {
		t.Error("second registration should replace the first")
	}
}
