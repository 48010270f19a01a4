package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/vango-go/vai-phone/pkg/call"
	"github.com/vango-go/vai-phone/pkg/telephony/twilio"
	"github.com/vango-go/vai-phone/pkg/transcript"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"status":"ok"}`+"\n")
}

// handleVoiceWebhook answers Twilio's incoming-call webhook with TwiML that
// bridges the call onto the media-stream endpoint.
func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	to := r.PostFormValue("To")
	callSID := r.PostFormValue("CallSid")
	s.logger.Info("incoming call", "call_sid", callSID, "from", from, "to", to)

	streamURL := "wss://" + r.Host + "/media-stream"
	body, err := twilio.ConnectStreamTwiML(streamURL, map[string]string{
		"from": from,
		"to":   to,
	})
	if err != nil {
		s.logger.Error("twiml render failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.Write(body)
}

// handleMediaStream runs one call: it upgrades the WebSocket, waits for the
// start message, then pumps media frames into a call session until the stream
// stops.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	conn := twilio.NewConn(ws)
	defer conn.Close()

	s.calls.Add(1)
	defer s.calls.Done()

	sess, err := s.awaitStart(r.Context(), conn)
	if err != nil {
		s.logger.Warn("media stream ended before start", "error", err)
		return
	}
	defer s.finishCall(sess)

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch msg.Event {
		case twilio.EventMedia:
			sess.HandleAudio(msg.Media.Payload)
		case twilio.EventStop:
			s.logger.Info("stream stopped", "call_sid", sess.CallSID())
			return
		case twilio.EventMark:
			if msg.Mark != nil {
				s.logger.Debug("playback complete", "call_sid", sess.CallSID(), "mark", msg.Mark.Name)
			}
		case twilio.EventDTMF:
			s.logger.Info("dtmf", "call_sid", sess.CallSID(), "digit", msg.DTMF.Digit)
		}
	}
}

// awaitStart consumes messages until the start event arrives, then builds and
// starts the call session.
func (s *Server) awaitStart(ctx context.Context, conn *twilio.Conn) (*call.Session, error) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msg.Event != twilio.EventStart {
			continue
		}
		start := msg.Start

		params := call.Params{
			CallSID:             start.CallSID,
			StreamSID:           start.StreamSID,
			From:                start.CustomParameters["from"],
			To:                  start.CustomParameters["to"],
			AgentName:           s.cfg.AgentName,
			SystemPrompt:        s.systemPrompt,
			LLMModel:            s.cfg.LLMModelName(),
			LLMMaxTokens:        s.cfg.LLMMaxTokens,
			LLMTimeout:          s.cfg.LLMTimeout,
			TTSTimeout:          s.cfg.TTSTimeout,
			EnergyThreshold:     s.cfg.EnergyThreshold,
			STTMaxReconnects:    s.cfg.STTMaxReconnects,
			STTReconnectBackoff: s.cfg.STTReconnectBackoff,
			SavePartial:         call.SavePartialMode(s.cfg.SavePartial),
			Logger:              s.logger,
		}

		sess := call.NewSession(params, s.deps.LLM, s.deps.Synth, conn, s.deps.STT)
		if err := sess.Start(ctx); err != nil {
			return nil, err
		}
		return sess, nil
	}
}

// finishCall ends the session, persists its transcript, and reports usage.
func (s *Server) finishCall(sess *call.Session) {
	sess.End()
	sess.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := transcript.Record{
		CallSID:   sess.CallSID(),
		From:      sess.From(),
		To:        sess.To(),
		StartedAt: sess.StartedAt(),
		Duration:  sess.Duration(),
		Turns:     sess.Turns(),
	}
	if err := s.deps.Store.Save(ctx, rec); err != nil {
		s.logger.Error("save transcript failed", "call_sid", sess.CallSID(), "error", err)
	}

	if err := s.deps.Reporter.ReportCall(ctx, sess.CallSID(), sess.Duration()); err != nil {
		s.logger.Error("billing report failed", "call_sid", sess.CallSID(), "error", err)
	}
}
