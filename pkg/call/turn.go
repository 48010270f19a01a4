package call

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vango-go/vai-phone/pkg/llm"
	"github.com/vango-go/vai-phone/pkg/voice"
)

// llmFallbackText is spoken when generation fails or times out.
const llmFallbackText = "I'm sorry, I'm having a little trouble right now. Could you say that again?"

// onTranscriptFinal handles a finalized caller utterance: record it, move to
// Thinking, and start the reply turn.
func (s *Session) onTranscriptFinal(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if s.closed.Load() {
		return
	}

	s.logger.Info("caller turn", "text", text)
	s.appendCallerTurn(text)

	s.mu.Lock()
	if s.turn != nil {
		// A reply is already in flight; the new utterance supersedes it.
		s.turn.cancel()
	}
	turnCtx, cancel := context.WithCancel(s.ctx)
	turn := &activeTurn{ctx: turnCtx, cancel: cancel, chunker: voice.NewSentenceChunker()}
	s.turn = turn
	s.state = StateThinking
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runTurn(turn)
}

// runTurn streams one LLM reply, feeding complete sentences to the speaker as
// they form.
func (s *Session) runTurn(turn *activeTurn) {
	defer s.wg.Done()

	llmCtx, cancel := context.WithTimeout(turn.ctx, s.params.LLMTimeout)
	defer cancel()

	req := &llm.Request{
		Model:     s.params.LLMModel,
		System:    s.params.SystemPrompt,
		Messages:  s.history(),
		MaxTokens: s.params.LLMMaxTokens,
	}

	stream, err := s.llmClient.StreamChat(llmCtx, req)
	if err != nil {
		s.turnFailed(turn, err)
		return
	}
	defer stream.Close()

	for {
		delta, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.turnFailed(turn, err)
			return
		}

		s.mu.Lock()
		turn.streamed.WriteString(delta)
		s.mu.Unlock()

		for _, sentence := range turn.chunker.Add(delta) {
			s.enqueue(speakItem{turn: turn, text: sentence})
		}
	}

	if rest := turn.chunker.Flush(); rest != "" {
		s.enqueue(speakItem{turn: turn, text: rest})
	}

	if turn.ctx.Err() == nil && !turn.recorded.Swap(true) {
		s.mu.Lock()
		full := strings.TrimSpace(turn.streamed.String())
		s.mu.Unlock()
		if full != "" {
			s.appendAssistantTurn(full)
			s.logger.Info("assistant turn", "text", full)
		}
	}
	s.enqueue(speakItem{turn: turn, endOfTurn: true})
}

// turnFailed speaks the fallback utterance instead of a reply. Cancelled
// turns (barge-in, call end) fail silently: the cancellation already handled
// cleanup and the caller is not owed an apology for interrupting.
func (s *Session) turnFailed(turn *activeTurn, err error) {
	if turn.ctx.Err() != nil {
		return
	}
	s.logger.Error("llm turn failed", "error", err)

	if !turn.recorded.Swap(true) {
		s.appendAssistantTurn(llmFallbackText)
	}
	s.enqueue(speakItem{turn: turn, text: llmFallbackText})
	s.enqueue(speakItem{turn: turn, endOfTurn: true})
}

// speakScripted plays fixed text (greeting, goodbyes) as its own
// interruptible turn, recorded up front.
func (s *Session) speakScripted(text string) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	if s.turn != nil {
		s.turn.cancel()
	}
	turnCtx, cancel := context.WithCancel(s.ctx)
	turn := &activeTurn{ctx: turnCtx, cancel: cancel}
	turn.recorded.Store(true)
	s.turn = turn
	s.mu.Unlock()

	s.appendAssistantTurn(text)
	s.enqueue(speakItem{turn: turn, text: text})
	s.enqueue(speakItem{turn: turn, endOfTurn: true})
}

// enqueue hands an item to the speaker without blocking past cancellation.
func (s *Session) enqueue(item speakItem) {
	select {
	case s.queue <- item:
	case <-item.turn.ctx.Done():
	case <-s.ctx.Done():
	}
}

// speaker is the single goroutine that synthesizes and plays sentences in
// order. Sequential synthesis guarantees playback order regardless of
// per-sentence latency.
func (s *Session) speaker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case item := <-s.queue:
			if item.turn.ctx.Err() != nil {
				continue
			}
			if item.endOfTurn {
				if item.turn.audioSent.Load() {
					name := fmt.Sprintf("turn-%d", s.markSeq.Add(1))
					if err := s.out.SendMark(name); err != nil {
						s.logger.Warn("mark send failed", "error", err)
					}
				}
				s.finishTurn(item.turn)
				continue
			}

			ttsCtx, cancel := context.WithTimeout(item.turn.ctx, s.params.TTSTimeout)
			audio, err := s.synth.Synthesize(ttsCtx, item.text)
			cancel()
			if err != nil {
				// The reply text is still recorded; the caller just doesn't
				// hear this sentence.
				if item.turn.ctx.Err() == nil {
					s.logger.Error("tts failed", "error", err)
				}
				continue
			}
			s.play(item.turn, audio)
		}
	}
}

// finishTurn returns to Listening once a turn's audio has fully played.
func (s *Session) finishTurn(turn *activeTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn == turn {
		s.turn = nil
	}
	if s.state != StateEnded {
		s.state = StateListening
	}
}

// play paces audio out one frame per FrameInterval, stopping at the frame
// boundary on cancellation.
func (s *Session) play(turn *activeTurn, audio []byte) {
	s.setState(StateSpeaking)

	ticker := time.NewTicker(s.params.FrameInterval)
	defer ticker.Stop()

	for off := 0; off < len(audio); off += voice.FrameBytes {
		if turn.ctx.Err() != nil || s.closed.Load() {
			return
		}
		end := off + voice.FrameBytes
		if end > len(audio) {
			end = len(audio)
		}
		if err := s.out.SendAudio(audio[off:end]); err != nil {
			s.logger.Warn("outbound audio failed", "error", err)
			return
		}
		turn.audioSent.Store(true)

		select {
		case <-ticker.C:
		case <-turn.ctx.Done():
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// bargeIn cancels the in-flight reply because the caller started speaking.
func (s *Session) bargeIn(trigger string) {
	s.mu.Lock()
	turn := s.turn
	if turn == nil || turn.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	turn.cancel()
	s.turn = nil
	streamed := strings.TrimSpace(turn.streamed.String())
	if s.state != StateEnded {
		s.state = StateListening
	}
	s.mu.Unlock()

	if err := s.out.Clear(); err != nil {
		s.logger.Warn("transport clear failed", "error", err)
	}
	s.logger.Info("barge-in", "trigger", trigger)

	s.recordPartial(turn, streamed)
}

// recordPartial applies the SavePartial policy to an interrupted reply.
func (s *Session) recordPartial(turn *activeTurn, streamed string) {
	if streamed == "" || turn.recorded.Load() {
		return
	}
	switch s.params.SavePartial {
	case SavePartialNone:
		return
	case SavePartialFull:
		if !turn.recorded.Swap(true) {
			s.appendAssistantTurn(streamed)
		}
	default: // SavePartialMarked
		if !turn.audioSent.Load() {
			return
		}
		if !turn.recorded.Swap(true) {
			s.appendAssistantTurn(streamed + " [interrupted]")
		}
	}
}
