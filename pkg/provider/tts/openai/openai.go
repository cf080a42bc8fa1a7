// Package openai provides a TTS provider backed by the OpenAI speech endpoint
// (POST /v1/audio/speech) or any server that implements it.
//
// Replies are requested as WAV, decoded to float32 and resampled from the
// service's native rate to the rate the caller asked for.
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

	"github.com/MrWong99/vastaa/pkg/audio"
	"github.com/MrWong99/vastaa/pkg/provider/tts"
)

// Defaults used when the corresponding setting is empty.
const (
	DefaultModel   = "tts-1"
	DefaultVoice   = "alloy"
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client  oai.Client
	baseURL string
	model   string
	voice   string
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	baseURL      string
	organization string
	voice        string
	timeout      time.Duration
	maxRetries   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithVoice selects the voice (e.g. "alloy", "nova"). Empty selects
// [DefaultVoice].
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the SDK retries failed requests. Negative
// values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a speech Provider. apiKey may only be empty when a base URL
// is configured. An empty model selects [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}
	if apiKey == "" && cfg.baseURL == "" {
		return nil, fmt.Errorf("tts/openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	if cfg.voice == "" {
		cfg.voice = DefaultVoice
	}
	if cfg.baseURL == "" {
		cfg.baseURL = DefaultBaseURL
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:  oai.NewClient(reqOpts...),
		baseURL: cfg.baseURL,
		model:   model,
		voice:   cfg.voice,
	}, nil
}

// BaseURL returns the endpoint requests are sent to.
func (p *Provider) BaseURL() string { return p.baseURL }

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, sampleRate int) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("tts/openai: text must not be empty")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("tts/openai: invalid sample rate %d", sampleRate)
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("tts/openai: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts/openai: read response: %w", err)
	}
	samples, nativeRate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("tts/openai: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("tts/openai: %w", tts.ErrEmptyAudio)
	}
	return audio.Resample(samples, nativeRate, sampleRate), nil
}
