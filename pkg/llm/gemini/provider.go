// Package gemini implements the llm.Client interface over the Gemini API
// using the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"io"
	"iter"

	"google.golang.org/genai"

	"github.com/vango-go/vai-phone/pkg/llm"
)

// Provider implements llm.Client for Gemini models.
type Provider struct {
	client *genai.Client
}

// New creates a Gemini provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// StreamChat starts a streaming generation.
func (p *Provider) StreamChat(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	seq := p.client.Models.GenerateContentStream(ctx, req.Model, contents, config)
	next, stop := iter.Pull2(seq)
	return &stream{next: next, stop: stop}, nil
}

// stream adapts the SDK's push iterator to the pull-based llm.Stream.
type stream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	done bool
}

func (s *stream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			s.done = true
			return "", fmt.Errorf("gemini stream: %w", err)
		}
		if text := resp.Text(); text != "" {
			return text, nil
		}
	}
}

func (s *stream) Close() error {
	s.done = true
	s.stop()
	return nil
}
