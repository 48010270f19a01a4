// Package call orchestrates one phone conversation: it routes caller audio to
// speech-to-text, turns finalized transcripts into LLM replies, synthesizes
// those replies sentence by sentence, and paces the audio back out to the
// transport. It also owns barge-in: the caller speaking over the agent cancels
// the in-flight reply.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/vai-phone/pkg/llm"
	"github.com/vango-go/vai-phone/pkg/voice"
	"github.com/vango-go/vai-phone/pkg/voice/stt"
)

// State is the call's position in the conversation loop.
type State int32

const (
	// StateListening means caller audio flows to STT and nothing is playing.
	StateListening State = iota
	// StateThinking means a finalized caller turn is being answered.
	StateThinking
	// StateSpeaking means reply audio is playing out to the caller.
	StateSpeaking
	// StateEnded is terminal.
	StateEnded
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateListening:
		return "LISTENING"
	case StateThinking:
		return "THINKING"
	case StateSpeaking:
		return "SPEAKING"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one entry in the call transcript. Immutable once the call ends.
type Turn struct {
	Speaker Speaker
	Text    string
	At      time.Time
}

// SavePartialMode controls what is recorded for a reply cut off by barge-in.
type SavePartialMode string

const (
	// SavePartialNone discards interrupted reply text.
	SavePartialNone SavePartialMode = "none"
	// SavePartialMarked records the text streamed so far with an
	// "[interrupted]" marker, once any reply audio reached the caller. Nothing
	// is recorded if barge-in happened before the first outbound frame.
	SavePartialMarked SavePartialMode = "marked"
	// SavePartialFull records all text streamed so far, heard or not.
	SavePartialFull SavePartialMode = "full"
)

// Transcriber is a live speech-to-text session. Its Events channel closing
// signals the session dropped.
type Transcriber interface {
	SendAudio(data []byte) error
	Events() <-chan stt.Event
	Close() error
}

// TranscriberFactory opens a fresh STT session, used at call start and on
// reconnect after a drop.
type TranscriberFactory func(ctx context.Context) (Transcriber, error)

// Synthesizer converts one sentence of text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Outbound is the transport side of the call: audio frames out to the caller,
// a clear instruction that discards anything the transport has buffered, and
// playback checkpoints the transport echoes back once audio before them has
// played.
type Outbound interface {
	SendAudio(payload []byte) error
	Clear() error
	SendMark(name string) error
}

// Params configures one call session.
type Params struct {
	CallSID   string
	StreamSID string
	From      string
	To        string

	AgentName    string
	SystemPrompt string

	LLMModel     string
	LLMMaxTokens int
	LLMTimeout   time.Duration
	TTSTimeout   time.Duration

	// EnergyThreshold is the normalized RMS level of inbound audio that
	// triggers barge-in while the agent is speaking.
	EnergyThreshold float64

	STTMaxReconnects    int
	STTReconnectBackoff time.Duration

	SavePartial SavePartialMode

	// FrameInterval paces outbound playback. Defaults to 20 ms, the real-time
	// duration of one µ-law frame.
	FrameInterval time.Duration

	Logger *slog.Logger
}

// activeTurn is the cancellation scope of one in-flight reply. Each turn owns
// its own sentence chunker so text buffered by a canceled turn can never bleed
// into the next reply.
type activeTurn struct {
	ctx       context.Context
	cancel    context.CancelFunc
	chunker   *voice.SentenceChunker
	streamed  strings.Builder // guarded by Session.mu
	audioSent atomic.Bool
	recorded  atomic.Bool
}

// speakItem is one unit of work for the speaker goroutine.
type speakItem struct {
	turn      *activeTurn
	text      string
	endOfTurn bool
}

// Session orchestrates one call. All methods are safe for concurrent use; the
// session is owned by the transport connection that created it.
type Session struct {
	params Params
	logger *slog.Logger

	llmClient      llm.Client
	synth          Synthesizer
	out            Outbound
	newTranscriber TranscriberFactory

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	turns         []Turn
	pendingFinals []string
	turn          *activeTurn

	sttMu sync.Mutex
	stt   Transcriber

	queue   chan speakItem
	markSeq atomic.Uint64

	startedAt time.Time
	endedAt   time.Time
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// NewSession creates a session. Call Start to connect STT and speak the
// greeting.
func NewSession(params Params, llmClient llm.Client, synth Synthesizer, out Outbound, factory TranscriberFactory) *Session {
	if params.FrameInterval == 0 {
		params.FrameInterval = 20 * time.Millisecond
	}
	if params.LLMTimeout == 0 {
		params.LLMTimeout = 15 * time.Second
	}
	if params.TTSTimeout == 0 {
		params.TTSTimeout = 10 * time.Second
	}
	if params.STTReconnectBackoff == 0 {
		params.STTReconnectBackoff = time.Second
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("call_sid", params.CallSID)

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		params:         params,
		logger:         logger,
		llmClient:      llmClient,
		synth:          synth,
		out:            out,
		newTranscriber: factory,
		ctx:            ctx,
		cancel:         cancel,
		state:          StateListening,
		queue:          make(chan speakItem, 32),
	}
}

// Start connects STT, launches the session goroutines, and speaks the
// greeting.
func (s *Session) Start(ctx context.Context) error {
	tr, err := s.newTranscriber(ctx)
	if err != nil {
		return fmt.Errorf("open stt: %w", err)
	}
	s.setTranscriber(tr)
	s.startedAt = time.Now()

	s.wg.Add(2)
	go s.sttLoop()
	go s.speaker()

	greeting := fmt.Sprintf("Hello, this is %s. How can I help you?", s.params.AgentName)
	s.speakScripted(greeting)

	s.logger.Info("call started", "from", s.params.From, "to", s.params.To)
	return nil
}

// HandleAudio processes one inbound µ-law frame: barge-in detection while
// speaking, then forwarding to STT.
func (s *Session) HandleAudio(frame []byte) error {
	if s.closed.Load() {
		return nil
	}

	if s.State() == StateSpeaking && s.params.EnergyThreshold > 0 {
		if voice.RMSEnergy(frame) >= s.params.EnergyThreshold {
			s.bargeIn("energy")
		}
	}

	s.sttMu.Lock()
	tr := s.stt
	s.sttMu.Unlock()
	if tr == nil {
		return nil
	}
	if err := tr.SendAudio(frame); err != nil {
		// The stt loop observes the drop through the events channel and
		// reconnects; losing frames in between is acceptable.
		return nil
	}
	return nil
}

// End terminates the call. Idempotent.
func (s *Session) End() {
	if s.closed.Swap(true) {
		return
	}
	s.mu.Lock()
	s.endedAt = time.Now()
	if s.turn != nil {
		s.turn.cancel()
		s.turn = nil
	}
	s.state = StateEnded
	s.mu.Unlock()

	s.cancel()

	s.sttMu.Lock()
	if s.stt != nil {
		s.stt.Close()
	}
	s.sttMu.Unlock()

	s.logger.Info("call ended", "duration", s.Duration(), "turns", len(s.Turns()))
}

// Wait blocks until the session goroutines have exited. Call after End.
func (s *Session) Wait() {
	s.wg.Wait()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Turns returns a copy of the transcript so far.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// CallSID returns the transport call identifier.
func (s *Session) CallSID() string {
	return s.params.CallSID
}

// From returns the caller number.
func (s *Session) From() string {
	return s.params.From
}

// To returns the called number.
func (s *Session) To() string {
	return s.params.To
}

// StartedAt returns when the media stream started.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Duration returns the call length, live-updating until End.
func (s *Session) Duration() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	if s.endedAt.IsZero() {
		return time.Since(s.startedAt)
	}
	return s.endedAt.Sub(s.startedAt)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return
	}
	s.state = state
}

func (s *Session) setTranscriber(tr Transcriber) {
	s.sttMu.Lock()
	defer s.sttMu.Unlock()
	if s.stt != nil {
		s.stt.Close()
	}
	s.stt = tr
}

// appendCallerTurn records caller speech, merging consecutive caller turns
// into one so the LLM history alternates roles.
func (s *Session) appendCallerTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.turns); n > 0 && s.turns[n-1].Speaker == SpeakerCaller {
		s.turns[n-1].Text += " " + text
		return
	}
	s.turns = append(s.turns, Turn{Speaker: SpeakerCaller, Text: text, At: time.Now()})
}

func (s *Session) appendAssistantTurn(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Speaker: SpeakerAssistant, Text: text, At: time.Now()})
}

// history snapshots the transcript as LLM messages, oldest first.
func (s *Session) history() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]llm.Message, 0, len(s.turns))
	for _, t := range s.turns {
		role := llm.RoleUser
		if t.Speaker == SpeakerAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return msgs
}
