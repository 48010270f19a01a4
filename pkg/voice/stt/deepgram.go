package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramListenURL = "wss://api.deepgram.com/v1/listen"

	// keepAliveInterval keeps the Deepgram socket open across caller silence.
	keepAliveInterval = 5 * time.Second
)

// DeepgramProvider implements live transcription using Deepgram's listen API.
type DeepgramProvider struct {
	apiKey string
	wsURL  string
}

// NewDeepgram creates a Deepgram STT provider.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{apiKey: apiKey, wsURL: deepgramListenURL}
}

// NewDeepgramWithURL creates a provider against a custom endpoint. Used in tests.
func NewDeepgramWithURL(apiKey, wsURL string) *DeepgramProvider {
	return &DeepgramProvider{apiKey: apiKey, wsURL: wsURL}
}

// Name returns the provider identifier.
func (p *DeepgramProvider) Name() string {
	return "deepgram"
}

// NewLive opens a streaming transcription session over WebSocket.
func (p *DeepgramProvider) NewLive(ctx context.Context, opts LiveOptions) (*Live, error) {
	u, err := url.Parse(p.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse listen URL: %w", err)
	}

	q := u.Query()
	model := opts.Model
	if model == "" {
		model = "nova-2"
	}
	q.Set("model", model)

	language := opts.Language
	if language == "" {
		language = "en-US"
	}
	q.Set("language", language)

	encoding := opts.Encoding
	if encoding == "" {
		encoding = "mulaw"
	}
	q.Set("encoding", encoding)

	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("vad_events", "true")
	q.Set("endpointing", "300")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("deepgram connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &Live{
		conn:   conn,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	go l.readLoop()
	go l.keepAliveLoop()

	return l, nil
}

// Live is one streaming transcription session. Push audio with SendAudio and
// consume Events until the channel closes, which signals the session ended.
type Live struct {
	conn    *websocket.Conn
	events  chan Event
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// deepgramMessage is the subset of the listen API response we consume.
type deepgramMessage struct {
	Type    string `json:"type"` // "Results", "UtteranceEnd", "SpeechStarted", "Metadata"
	IsFinal bool   `json:"is_final"`
	// SpeechFinal is set on the Results message that ends an utterance.
	SpeechFinal bool `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (l *Live) readLoop() {
	defer func() {
		close(l.events)
		close(l.done)
	}()

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return
		}

		event, ok := ParseEvent(data)
		if !ok {
			continue
		}

		select {
		case l.events <- event:
		case <-l.ctx.Done():
			return
		}
	}
}

// ParseEvent decodes one Deepgram listen message into an Event. The second
// return is false for messages the caller should ignore (metadata, empty
// transcripts, malformed payloads).
func ParseEvent(data []byte) (Event, bool) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, false
	}

	switch msg.Type {
	case "Results":
		if len(msg.Channel.Alternatives) == 0 {
			return Event{}, false
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return Event{}, false
		}
		return Event{
			Text:        alt.Transcript,
			IsFinal:     msg.IsFinal,
			SpeechFinal: msg.SpeechFinal,
			Confidence:  alt.Confidence,
		}, true

	case "UtteranceEnd":
		return Event{UtteranceEnd: true}, true
	}

	return Event{}, false
}

func (l *Live) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.writeMu.Lock()
			err := l.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			l.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// SendAudio pushes raw audio in the format given at session creation.
func (l *Live) SendAudio(data []byte) error {
	if l.closed.Load() {
		return fmt.Errorf("stt session closed")
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Events returns the channel of transcription events. It closes when the
// session ends, whether by Close or a dropped connection.
func (l *Live) Events() <-chan Event {
	return l.events
}

// Close shuts the session down gracefully.
func (l *Live) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.cancel()

	l.writeMu.Lock()
	l.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	l.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	l.writeMu.Unlock()

	return l.conn.Close()
}
