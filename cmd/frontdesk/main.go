// Command frontdesk runs the voice receptionist server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/frontdesk/internal/app"
	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/frontdesk/pkg/provider/llm/openai"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	oastt "github.com/MrWong99/frontdesk/pkg/provider/stt/openai"
	"github.com/MrWong99/frontdesk/pkg/provider/stt/whisper"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
	"github.com/MrWong99/frontdesk/pkg/provider/tts/elevenlabs"
	oatts "github.com/MrWong99/frontdesk/pkg/provider/tts/openai"
	"github.com/MrWong99/frontdesk/pkg/provider/vad"
	"github.com/MrWong99/frontdesk/pkg/provider/vad/energy"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	defaultListenAddr = ":8080"
	groqBaseURL       = "https://api.groq.com/openai/v1"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "frontdesk.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload agent settings and log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "frontdesk: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "frontdesk: %v\n", err)
		}
		return 1
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("frontdesk starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"store", cfg.Store.Driver,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "frontdesk",
		ServiceVersion: version,
		Receptionist:   cfg.Agent.Name,
		Business:       cfg.Agent.Business,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config, d config.ConfigDiff) {
			if newCfg.Server.ListenAddr == "" {
				newCfg.Server.ListenAddr = defaultListenAddr
			}
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
			}
			application.ApplyConfig(newCfg)
		}, config.WithWatcherLogger(slog.Default()))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go w.Run(ctx) //nolint:errcheck // Run always returns nil
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           application.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if tls := cfg.Server.TLS; tls != nil {
			serveErr <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		serveErr <- srv.ListenAndServe()
	}()
	slog.Info("server ready, press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	code := 0
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			code = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the shipped provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────
	// groq serves the OpenAI transcription API under its own base URL.
	for _, name := range []string{"openai", "groq"} {
		reg.RegisterSTT(name, func(e config.ProviderEntry) (stt.Provider, error) {
			opts := []oastt.Option{oastt.WithBaseURL(baseURL(name, e.BaseURL))}
			if lang := optString(e.Options, "language"); lang != "" {
				opts = append(opts, oastt.WithLanguage(lang))
			}
			if e.Timeout > 0 {
				opts = append(opts, oastt.WithTimeout(e.Timeout))
			}
			return oastt.New(e.APIKey, e.Model, opts...)
		})
	}

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if e.Timeout > 0 {
			opts = append(opts, whisper.WithHTTPClient(&http.Client{Timeout: e.Timeout}))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if e.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(e.BaseURL))
		}
		if org := optString(e.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if e.Timeout > 0 {
			opts = append(opts, oallm.WithTimeout(e.Timeout))
		}
		return oallm.New(e.APIKey, e.Model, opts...)
	})

	// Every other backend goes through any-llm-go. Without an API key the
	// backend reads its own environment variable.
	for _, name := range anyllm.Backends {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(name, e.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────
	for _, name := range []string{"openai", "groq"} {
		reg.RegisterTTS(name, func(e config.ProviderEntry) (tts.Provider, error) {
			opts := []oatts.Option{oatts.WithBaseURL(baseURL(name, e.BaseURL))}
			if f := optString(e.Options, "format"); f != "" {
				opts = append(opts, oatts.WithFormat(tts.Format(f)))
			}
			if e.Timeout > 0 {
				opts = append(opts, oatts.WithTimeout(e.Timeout))
			}
			return oatts.New(e.APIKey, e.Model, opts...)
		})
	}

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := optString(e.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if e.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// buildProviders instantiates the providers named in cfg. The VAD slot is
// optional and defaults to the energy detector inside the app.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.STT, err = reg.CreateSTT(cfg.Providers.STT); err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	if ps.LLM, err = reg.CreateLLM(cfg.Providers.LLM); err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	if ps.TTS, err = reg.CreateTTS(cfg.Providers.TTS); err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	if name := cfg.Providers.VAD.Name; name != "" {
		if ps.VAD, err = reg.CreateVAD(cfg.Providers.VAD); err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		}
	}

	for kind, e := range map[string]config.ProviderEntry{
		"stt": cfg.Providers.STT, "llm": cfg.Providers.LLM, "tts": cfg.Providers.TTS,
	} {
		slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model)
	}
	return ps, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// baseURL returns override, or the Groq endpoint for the groq provider.
func baseURL(provider, override string) string {
	if override == "" && provider == "groq" {
		return groqBaseURL
	}
	return override
}

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

// optString extracts a string value from a provider Options map. Returns ""
// when the key is absent or not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
