// Package openai provides a TTS provider backed by the OpenAI speech API or a
// compatible endpoint such as Groq's (model "playai-tts", voice "Fritz-PlayAI").
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

const (
	// DefaultModel is the speech model used when none is configured.
	DefaultModel = "playai-tts"

	// DefaultVoice is used when a request names no voice.
	DefaultVoice = "Fritz-PlayAI"

	// pcmRate is the fixed rate of the speech API's "pcm" response format.
	pcmRate = 24000
)

// Provider implements tts.Provider using the OpenAI audio speech API.
type Provider struct {
	client oai.Client
	model  string
	format tts.Format
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	baseURL    string
	format     tts.Format
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithFormat selects the response encoding. Defaults to [tts.FormatMP3].
func WithFormat(f tts.Format) Option {
	return func(c *config) { c.format = f }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets the SDK's automatic retry count. Defaults to 0;
// negative values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs a speech Provider. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{format: tts.FormatMP3}
	for _, o := range opts {
		o(cfg)
	}
	switch cfg.format {
	case tts.FormatMP3, tts.FormatWAV, tts.FormatPCM:
	default:
		return nil, fmt.Errorf("openai tts: unsupported format %q", cfg.format)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		format: cfg.format,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, fmt.Errorf("openai tts: %w", tts.ErrEmptyText)
	}
	if voice.ID == "" {
		voice.ID = DefaultVoice
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice.ID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	}
	if voice.Speed > 0 {
		params.Speed = param.NewOpt(voice.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai tts: read body: %w", err)
	}
	if len(data) == 0 {
		return tts.Audio{}, fmt.Errorf("openai tts: empty audio payload")
	}

	out := tts.Audio{Data: data, Format: p.format}
	if p.format == tts.FormatPCM {
		out.SampleRate = pcmRate
		out.Channels = 1
	}
	return out, nil
}
