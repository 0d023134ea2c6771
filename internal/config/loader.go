package config

import (
	"bytes"
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
	"stt": {"openai", "groq", "whisper"},
	"llm": {"openai", "groq", "anthropic", "gemini", "ollama", "deepseek", "mistral", "llamacpp", "llamafile"},
	"tts": {"openai", "groq", "elevenlabs"},
	"vad": {"energy"},
}

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
// Environment references such as ${GROQ_API_KEY} are expanded before
// decoding. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
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
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers: the pipeline cannot run without all three network stages.
	for _, p := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"stt", cfg.Providers.STT},
		{"llm", cfg.Providers.LLM},
		{"tts", cfg.Providers.TTS},
	} {
		if p.entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", p.kind))
		}
		if p.entry.Timeout < 0 {
			errs = append(errs, fmt.Errorf("providers.%s.timeout must not be negative", p.kind))
		}
		validateProviderName(p.kind, p.entry.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Store
	switch {
	case cfg.Store.Driver == "" || cfg.Store.Driver == StoreMemory:
		if cfg.Store.DSN != "" {
			slog.Warn("store.dsn is ignored by the memory driver")
		}
	case !cfg.Store.Driver.IsValid():
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, sqlite, postgres", cfg.Store.Driver))
	case cfg.Store.DSN == "":
		errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", cfg.Store.Driver))
	}

	// Agent
	a := cfg.Agent
	if a.Speed != 0 && (a.Speed < 0.25 || a.Speed > 4.0) {
		errs = append(errs, fmt.Errorf("agent.speed %.2f is out of range [0.25, 4.0]", a.Speed))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", a.Temperature))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tokens %d must not be negative", a.MaxTokens))
	}
	if a.Cooldown < 0 || a.PollInterval < 0 {
		errs = append(errs, errors.New("agent.cooldown and agent.poll_interval must not be negative"))
	}
	ep := a.Endpoint
	if ep.MinUtterance < 0 || ep.TrailingSilence < 0 || ep.MaxUtterance < 0 || ep.EnergyThreshold < 0 {
		errs = append(errs, errors.New("agent.endpoint values must not be negative"))
	}
	if ep.MinUtterance > 0 && ep.MaxUtterance > 0 && ep.MinUtterance > ep.MaxUtterance {
		errs = append(errs, fmt.Errorf("agent.endpoint.min_utterance %s exceeds max_utterance %s", ep.MinUtterance, ep.MaxUtterance))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
