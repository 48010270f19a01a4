// Package stt provides streaming speech-to-text for live call audio.
package stt

import "context"

// Event is a transcription event from the STT service.
type Event struct {
	// Text is the transcript for this segment. Empty for UtteranceEnd events.
	Text string

	// IsFinal reports that the service committed this segment; the text will
	// not be revised. Several final segments can make up one caller turn.
	IsFinal bool

	// SpeechFinal reports detected end-of-speech: the caller's turn is
	// complete. This is the signal that finalizes a turn.
	SpeechFinal bool

	// UtteranceEnd marks a service-side utterance boundary with no transcript
	// attached.
	UtteranceEnd bool

	Confidence float64
}

// LiveOptions configures a live transcription session.
type LiveOptions struct {
	Model      string // service model, e.g. "nova-2"
	Language   string // BCP-47 code, e.g. "en-US"
	Encoding   string // audio encoding, e.g. "mulaw"
	SampleRate int    // audio sample rate in Hz
}

// Provider opens live transcription sessions.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewLive opens a streaming transcription session. Audio is pushed with
	// SendAudio; events arrive on Events until the session ends.
	NewLive(ctx context.Context, opts LiveOptions) (*Live, error)
}
