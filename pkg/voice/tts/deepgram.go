package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultSpeakURL is the Deepgram text-to-speech endpoint.
const DefaultSpeakURL = "https://api.deepgram.com/v1/speak"

// Deepgram synthesizes speech with Deepgram's Aura voices.
type Deepgram struct {
	apiKey     string
	speakURL   string
	httpClient *http.Client
	opts       Options
}

// DeepgramOption configures the Deepgram TTS client.
type DeepgramOption func(*Deepgram)

// WithSpeakURL sets a custom endpoint (for testing or proxying).
func WithSpeakURL(u string) DeepgramOption {
	return func(d *Deepgram) {
		d.speakURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) DeepgramOption {
	return func(d *Deepgram) {
		d.httpClient = client
	}
}

// NewDeepgram creates a Deepgram TTS client. Zero-value Options fields fall
// back to telephone audio defaults: aura-asteria-en, mulaw, 8000 Hz.
func NewDeepgram(apiKey string, opts Options, options ...DeepgramOption) *Deepgram {
	if opts.Voice == "" {
		opts.Voice = "aura-asteria-en"
	}
	if opts.Encoding == "" {
		opts.Encoding = "mulaw"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 8000
	}

	d := &Deepgram{
		apiKey:     apiKey,
		speakURL:   DefaultSpeakURL,
		httpClient: &http.Client{},
		opts:       opts,
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Name returns the provider identifier.
func (d *Deepgram) Name() string {
	return "deepgram"
}

// Synthesize converts text into a complete audio buffer.
func (d *Deepgram) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := d.SynthesizeStream(ctx, text)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	audio, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}

// SynthesizeStream converts text into audio delivered as the service produces
// it, so playback can begin before synthesis finishes.
func (d *Deepgram) SynthesizeStream(ctx context.Context, text string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text")
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.requestURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("deepgram speak: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return resp.Body, nil
}

func (d *Deepgram) requestURL() string {
	q := url.Values{}
	q.Set("model", d.opts.Voice)
	q.Set("encoding", d.opts.Encoding)
	q.Set("sample_rate", strconv.Itoa(d.opts.SampleRate))
	return d.speakURL + "?" + q.Encode()
}
