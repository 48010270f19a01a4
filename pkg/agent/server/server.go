// Package server wires the HTTP surface of the phone agent: the Twilio voice
// webhook, the media-stream WebSocket endpoint, and health checking.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-phone/pkg/agent/config"
	"github.com/vango-go/vai-phone/pkg/billing"
	"github.com/vango-go/vai-phone/pkg/call"
	"github.com/vango-go/vai-phone/pkg/llm"
	"github.com/vango-go/vai-phone/pkg/llm/gemini"
	"github.com/vango-go/vai-phone/pkg/llm/openai"
	"github.com/vango-go/vai-phone/pkg/transcript"
	"github.com/vango-go/vai-phone/pkg/voice/stt"
	"github.com/vango-go/vai-phone/pkg/voice/tts"
)

// defaultSystemPrompt is used when no system prompt file is configured.
const defaultSystemPrompt = `You are %s, a helpful voice assistant answering a phone call.
Keep replies short and conversational, one to three sentences, as they will be
read aloud. Never use markdown, lists, or emoji. If you don't know something,
say so plainly.`

// Deps are the injectable collaborators of the server. Production wiring
// comes from BuildDeps; tests substitute fakes.
type Deps struct {
	LLM      llm.Client
	Synth    call.Synthesizer
	STT      call.TranscriberFactory
	Store    transcript.Store
	Reporter billing.Reporter
}

// Server handles the agent's HTTP surface and tracks live calls.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	systemPrompt string
	upgrader     websocket.Upgrader

	calls sync.WaitGroup
}

// New builds a production server: Deepgram STT/TTS, the configured LLM
// provider, and the configured transcript store.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	deps, err := BuildDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDeps(cfg, logger, deps), nil
}

// BuildDeps constructs the production collaborators from config.
func BuildDeps(ctx context.Context, cfg config.Config) (Deps, error) {
	var llmClient llm.Client
	switch cfg.LLMProvider() {
	case "openai":
		llmClient = openai.New(cfg.OpenAIAPIKey)
	case "gemini":
		client, err := gemini.New(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return Deps{}, err
		}
		llmClient = client
	default:
		return Deps{}, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider())
	}

	sttProvider := stt.NewDeepgram(cfg.DeepgramAPIKey)
	sttOpts := stt.LiveOptions{
		Model:      cfg.STTModel,
		Language:   cfg.STTLanguage,
		Encoding:   "mulaw",
		SampleRate: 8000,
	}
	factory := func(ctx context.Context) (call.Transcriber, error) {
		live, err := sttProvider.NewLive(ctx, sttOpts)
		if err != nil {
			return nil, err
		}
		return live, nil
	}

	synth := tts.NewDeepgram(cfg.DeepgramAPIKey, tts.Options{Voice: cfg.TTSVoice})

	var store transcript.Store
	var err error
	if cfg.DatabaseURL != "" {
		store, err = transcript.NewPostgresStore(ctx, cfg.DatabaseURL)
	} else {
		store, err = transcript.NewFileStore(cfg.TranscriptsDir)
	}
	if err != nil {
		return Deps{}, fmt.Errorf("open transcript store: %w", err)
	}

	var reporter billing.Reporter = billing.NopReporter{}
	if cfg.StripeAPIKey != "" && cfg.StripeCustomerID != "" {
		reporter = billing.NewStripeReporter(cfg.StripeAPIKey, cfg.StripeMeterEvent, cfg.StripeCustomerID)
	}

	return Deps{
		LLM:      llmClient,
		Synth:    synth,
		STT:      factory,
		Store:    store,
		Reporter: reporter,
	}, nil
}

// NewWithDeps builds a server around explicit collaborators.
func NewWithDeps(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		mux:          http.NewServeMux(),
		deps:         deps,
		systemPrompt: loadSystemPrompt(cfg),
		upgrader: websocket.Upgrader{
			// Twilio does not send a browser origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /twilio/voice", s.handleVoiceWebhook)
	s.mux.HandleFunc("GET /media-stream", s.handleMediaStream)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// WaitCalls blocks until live calls finish or ctx expires. Returns false on
// timeout.
func (s *Server) WaitCalls(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.calls.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close releases the transcript store.
func (s *Server) Close() error {
	if s.deps.Store != nil {
		return s.deps.Store.Close()
	}
	return nil
}

// loadSystemPrompt reads the configured prompt file, falling back to the
// built-in phone prompt.
func loadSystemPrompt(cfg config.Config) string {
	if cfg.SystemPromptPath != "" {
		if data, err := os.ReadFile(cfg.SystemPromptPath); err == nil {
			if prompt := strings.TrimSpace(string(data)); prompt != "" {
				return prompt
			}
		}
	}
	return fmt.Sprintf(defaultSystemPrompt, cfg.AgentName)
}
