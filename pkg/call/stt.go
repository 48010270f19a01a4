package call

import (
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/vai-phone/pkg/voice/stt"
)

// sttApologyText is spoken when transcription cannot be restored.
const sttApologyText = "I'm sorry, I'm having trouble hearing you. Please call back in a few minutes. Goodbye."

// sttLoop consumes transcription events for the life of the call, reconnecting
// a bounded number of times when the session drops.
func (s *Session) sttLoop() {
	defer s.wg.Done()

	for {
		s.sttMu.Lock()
		tr := s.stt
		s.sttMu.Unlock()
		if tr == nil {
			return
		}

		for ev := range tr.Events() {
			s.handleSTTEvent(ev)
		}

		if s.closed.Load() || s.ctx.Err() != nil {
			return
		}

		s.logger.Warn("stt session dropped, reconnecting")
		next, err := s.reconnectSTT()
		if err != nil {
			s.logger.Error("stt reconnect exhausted", "error", err)
			s.speakScripted(sttApologyText)
			s.drainSpeaker()
			s.End()
			return
		}
		s.setTranscriber(next)
	}
}

// reconnectSTT retries the transcriber factory with linear backoff.
func (s *Session) reconnectSTT() (Transcriber, error) {
	var lastErr error = fmt.Errorf("connection lost")
	for attempt := 1; attempt <= s.params.STTMaxReconnects; attempt++ {
		select {
		case <-time.After(s.params.STTReconnectBackoff * time.Duration(attempt)):
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}

		tr, err := s.newTranscriber(s.ctx)
		if err == nil {
			s.logger.Info("stt reconnected", "attempt", attempt)
			return tr, nil
		}
		lastErr = err
		s.logger.Warn("stt reconnect failed", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("after %d attempts: %w", s.params.STTMaxReconnects, lastErr)
}

// drainSpeaker waits for queued scripted audio to finish playing, bounded so a
// wedged synthesizer cannot hold the call open.
func (s *Session) drainSpeaker() {
	deadline := time.After(s.params.TTSTimeout + 10*time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			return
		case <-s.ctx.Done():
			return
		case <-tick.C:
			s.mu.Lock()
			idle := s.turn == nil && len(s.queue) == 0
			s.mu.Unlock()
			if idle {
				return
			}
		}
	}
}

// handleSTTEvent routes one transcription event.
func (s *Session) handleSTTEvent(ev stt.Event) {
	if s.closed.Load() {
		return
	}

	if ev.UtteranceEnd {
		s.finalizeUtterance()
		return
	}
	if strings.TrimSpace(ev.Text) == "" {
		return
	}

	if !ev.IsFinal {
		// Interim transcript: confirmation that the caller is speaking. While
		// the agent is replying that means barge-in.
		switch s.State() {
		case StateSpeaking, StateThinking:
			s.bargeIn("transcript")
		}
		return
	}

	s.mu.Lock()
	s.pendingFinals = append(s.pendingFinals, strings.TrimSpace(ev.Text))
	s.mu.Unlock()

	if ev.SpeechFinal {
		s.finalizeUtterance()
	}
}

// finalizeUtterance assembles accumulated final segments into one caller turn.
func (s *Session) finalizeUtterance() {
	s.mu.Lock()
	text := strings.Join(s.pendingFinals, " ")
	s.pendingFinals = s.pendingFinals[:0]
	s.mu.Unlock()

	s.onTranscriptFinal(text)
}
