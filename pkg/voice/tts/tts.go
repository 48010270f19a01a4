// Package tts provides text-to-speech synthesis for call playback.
package tts

import (
	"context"
	"io"
)

// Provider converts text into audio.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text into a complete audio buffer.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// SynthesizeStream converts text into audio delivered as the service
	// produces it. The caller must close the returned reader.
	SynthesizeStream(ctx context.Context, text string) (io.ReadCloser, error)
}

// Options configures synthesis output.
type Options struct {
	Voice      string // service voice model, e.g. "aura-asteria-en"
	Encoding   string // output encoding, e.g. "mulaw"
	SampleRate int    // output sample rate in Hz
}
