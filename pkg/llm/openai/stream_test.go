package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/vai-phone/pkg/llm"
)

func sseBody(chunks ...string) io.ReadCloser {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString("data: " + c + "\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return io.NopCloser(strings.NewReader(b.String()))
}

func collect(t *testing.T, s llm.Stream) []string {
	t.Helper()
	var deltas []string
	for {
		delta, err := s.Next()
		if err == io.EOF {
			return deltas
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		deltas = append(deltas, delta)
	}
}

func TestEventStream_Deltas(t *testing.T) {
	s := newEventStream(sseBody(
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":" there."}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	))
	defer s.Close()

	got := collect(t, s)
	if strings.Join(got, "") != "Hello there." {
		t.Errorf("deltas = %v, want %q joined", got, "Hello there.")
	}
}

func TestEventStream_SkipsMalformed(t *testing.T) {
	s := newEventStream(io.NopCloser(strings.NewReader(
		"data: {broken\n\n" +
			": comment line\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
			"data: [DONE]\n\n",
	)))
	defer s.Close()

	got := collect(t, s)
	if len(got) != 1 || got[0] != "ok" {
		t.Errorf("deltas = %v, want [ok]", got)
	}
}

func TestEventStream_EOFWithoutDone(t *testing.T) {
	s := newEventStream(io.NopCloser(strings.NewReader(
		"data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n",
	)))
	defer s.Close()

	got := collect(t, s)
	if len(got) != 1 || got[0] != "partial" {
		t.Errorf("deltas = %v, want [partial]", got)
	}
	// EOF is sticky.
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("Next after EOF = %v, want io.EOF", err)
	}
}

func TestProvider_StreamChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi!\"}}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New("test-key", WithBaseURL(srv.URL))
	stream, err := p.StreamChat(context.Background(), &llm.Request{
		Model:    "gpt-4o-mini",
		System:   "Be brief.",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer stream.Close()

	got := collect(t, stream)
	if len(got) != 1 || got[0] != "Hi!" {
		t.Errorf("deltas = %v, want [Hi!]", got)
	}
}

func TestProvider_StreamChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"invalid api key","type":"auth_error"}}`)
	}))
	defer srv.Close()

	p := New("bad-key", WithBaseURL(srv.URL))
	_, err := p.StreamChat(context.Background(), &llm.Request{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error = %v, want message from response body", err)
	}
}
