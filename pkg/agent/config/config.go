// Package config loads the process-wide agent configuration from the
// environment. The returned Config is immutable after LoadFromEnv; components
// receive it by value and never read ambient state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SavePartialMode controls how an interrupted assistant turn is recorded.
type SavePartialMode string

const (
	// SavePartialNone discards interrupted turns from the transcript.
	SavePartialNone SavePartialMode = "none"
	// SavePartialMarked records the text streamed so far with an [interrupted] marker.
	SavePartialMarked SavePartialMode = "marked"
	// SavePartialFull records the text streamed so far as-is.
	SavePartialFull SavePartialMode = "full"
)

// Config holds all settings for the phone agent.
type Config struct {
	Addr string

	// API credentials.
	DeepgramAPIKey string
	OpenAIAPIKey   string
	GeminiAPIKey   string
	StripeAPIKey   string

	// Stripe metered billing; active when StripeAPIKey and StripeCustomerID
	// are both set.
	StripeCustomerID string
	StripeMeterEvent string

	// DatabaseURL enables the Postgres transcript store when set.
	DatabaseURL string

	AgentName string

	// STT settings (Deepgram live).
	STTModel            string
	STTLanguage         string
	STTMaxReconnects    int
	STTReconnectBackoff time.Duration

	// TTS settings (Deepgram Aura).
	TTSVoice   string
	TTSTimeout time.Duration

	// LLM settings. Model is canonical "provider/model", e.g. "openai/gpt-4o-mini".
	LLMModel     string
	LLMMaxTokens int
	LLMTimeout   time.Duration

	// Barge-in energy threshold on decoded µ-law samples (0.0-1.0).
	EnergyThreshold float64

	// SavePartial controls transcript recording for interrupted turns.
	SavePartial SavePartialMode

	TranscriptsDir   string
	SystemPromptPath string

	// Operational HTTP timeouts.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

// LoadFromEnv builds a Config from environment variables and validates it.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VAI_PHONE_ADDR", ":8080"),
		DeepgramAPIKey:      os.Getenv("DEEPGRAM_API_KEY"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeCustomerID:    os.Getenv("VAI_PHONE_STRIPE_CUSTOMER"),
		StripeMeterEvent:    envOr("VAI_PHONE_STRIPE_METER_EVENT", "phone_call_seconds"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		AgentName:           envOr("VAI_PHONE_AGENT_NAME", "AI Assistant"),
		STTModel:            envOr("VAI_PHONE_STT_MODEL", "nova-2"),
		STTLanguage:         envOr("VAI_PHONE_STT_LANGUAGE", "en-US"),
		STTMaxReconnects:    envIntOr("VAI_PHONE_STT_MAX_RECONNECTS", 3),
		STTReconnectBackoff: envDurationOr("VAI_PHONE_STT_RECONNECT_BACKOFF", 500*time.Millisecond),
		TTSVoice:            envOr("VAI_PHONE_TTS_VOICE", "aura-asteria-en"),
		TTSTimeout:          envDurationOr("VAI_PHONE_TTS_TIMEOUT", 15*time.Second),
		LLMModel:            envOr("VAI_PHONE_LLM_MODEL", "openai/gpt-4o-mini"),
		LLMMaxTokens:        envIntOr("VAI_PHONE_LLM_MAX_TOKENS", 300),
		LLMTimeout:          envDurationOr("VAI_PHONE_LLM_TIMEOUT", 20*time.Second),
		EnergyThreshold:     envFloat64Or("VAI_PHONE_ENERGY_THRESHOLD", 0.05),
		SavePartial:         SavePartialMode(envOr("VAI_PHONE_SAVE_PARTIAL", string(SavePartialMarked))),
		TranscriptsDir:      envOr("VAI_PHONE_TRANSCRIPTS_DIR", "transcripts"),
		SystemPromptPath:    envOr("VAI_PHONE_SYSTEM_PROMPT_PATH", "system_prompt.md"),
		ReadHeaderTimeout:   envDurationOr("VAI_PHONE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VAI_PHONE_SHUTDOWN_GRACE", 15*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}

	provider, _, ok := strings.Cut(c.LLMModel, "/")
	if !ok {
		return fmt.Errorf("VAI_PHONE_LLM_MODEL %q must be of the form provider/model", c.LLMModel)
	}
	switch provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for model %q", c.LLMModel)
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for model %q", c.LLMModel)
		}
	default:
		return fmt.Errorf("unknown LLM provider %q", provider)
	}

	switch c.SavePartial {
	case SavePartialNone, SavePartialMarked, SavePartialFull:
	default:
		return fmt.Errorf("VAI_PHONE_SAVE_PARTIAL %q must be none, marked, or full", c.SavePartial)
	}

	if c.STTMaxReconnects < 0 {
		return fmt.Errorf("VAI_PHONE_STT_MAX_RECONNECTS must be >= 0")
	}
	if c.EnergyThreshold < 0 || c.EnergyThreshold > 1 {
		return fmt.Errorf("VAI_PHONE_ENERGY_THRESHOLD must be within [0, 1]")
	}
	return nil
}

// LLMProvider returns the provider half of the canonical model ID.
func (c Config) LLMProvider() string {
	provider, _, _ := strings.Cut(c.LLMModel, "/")
	return provider
}

// LLMModelName returns the model half of the canonical model ID.
func (c Config) LLMModelName() string {
	_, model, _ := strings.Cut(c.LLMModel, "/")
	return model
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat64Or(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
