// Package twilio implements the Twilio Media Streams wire protocol: the
// bidirectional WebSocket message codec, a connection wrapper for outbound
// audio, and TwiML generation for the voice webhook.
package twilio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Media stream event names, as sent by Twilio.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventDTMF      = "dtmf"
)

// Message is one inbound media-stream message.
type Message struct {
	Event     string
	StreamSID string
	Start     *Start
	Media     *Media
	Mark      *Mark
	Stop      *Stop
	DTMF      *DTMF
}

// Start carries the stream metadata Twilio sends once per call.
type Start struct {
	StreamSID        string
	AccountSID       string
	CallSID          string
	Tracks           []string
	MediaFormat      MediaFormat
	CustomParameters map[string]string
}

// MediaFormat describes the audio encoding of the stream.
type MediaFormat struct {
	Encoding   string
	SampleRate int
	Channels   int
}

// Media is one inbound audio frame, payload already base64-decoded.
type Media struct {
	Track     string
	Timestamp string
	Payload   []byte
}

// Mark echoes a playback checkpoint previously sent by us.
type Mark struct {
	Name string
}

// Stop signals the stream has ended.
type Stop struct {
	AccountSID string
	CallSID    string
}

// DTMF is one keypad digit pressed by the caller.
type DTMF struct {
	Digit string
}

// wire types mirror Twilio's JSON shape.
type wireMessage struct {
	Event     string     `json:"event"`
	StreamSID string     `json:"streamSid,omitempty"`
	Start     *wireStart `json:"start,omitempty"`
	Media     *wireMedia `json:"media,omitempty"`
	Mark      *wireMark  `json:"mark,omitempty"`
	Stop      *wireStop  `json:"stop,omitempty"`
	DTMF      *wireDTMF  `json:"dtmf,omitempty"`
}

type wireStart struct {
	StreamSID        string            `json:"streamSid"`
	AccountSID       string            `json:"accountSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      wireMediaFormat   `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

type wireMediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type wireMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type wireMark struct {
	Name string `json:"name"`
}

type wireStop struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

type wireDTMF struct {
	Digit string `json:"digit"`
}

// ParseMessage decodes one inbound media-stream message, base64-decoding any
// audio payload.
func ParseMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}

	msg := Message{Event: w.Event, StreamSID: w.StreamSID}

	switch w.Event {
	case EventStart:
		if w.Start == nil {
			return Message{}, fmt.Errorf("start message missing start body")
		}
		msg.Start = &Start{
			StreamSID:  w.Start.StreamSID,
			AccountSID: w.Start.AccountSID,
			CallSID:    w.Start.CallSID,
			Tracks:     w.Start.Tracks,
			MediaFormat: MediaFormat{
				Encoding:   w.Start.MediaFormat.Encoding,
				SampleRate: w.Start.MediaFormat.SampleRate,
				Channels:   w.Start.MediaFormat.Channels,
			},
			CustomParameters: w.Start.CustomParameters,
		}

	case EventMedia:
		if w.Media == nil {
			return Message{}, fmt.Errorf("media message missing media body")
		}
		payload, err := base64.StdEncoding.DecodeString(w.Media.Payload)
		if err != nil {
			return Message{}, fmt.Errorf("decode media payload: %w", err)
		}
		msg.Media = &Media{
			Track:     w.Media.Track,
			Timestamp: w.Media.Timestamp,
			Payload:   payload,
		}

	case EventMark:
		if w.Mark != nil {
			msg.Mark = &Mark{Name: w.Mark.Name}
		}

	case EventStop:
		if w.Stop != nil {
			msg.Stop = &Stop{AccountSID: w.Stop.AccountSID, CallSID: w.Stop.CallSID}
		}

	case EventDTMF:
		if w.DTMF != nil {
			msg.DTMF = &DTMF{Digit: w.DTMF.Digit}
		}
	}

	return msg, nil
}

// mediaOut builds an outbound media message with a base64 payload.
func mediaOut(streamSID string, payload []byte) wireMessage {
	return wireMessage{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     &wireMedia{Payload: base64.StdEncoding.EncodeToString(payload)},
	}
}

// clearOut builds the message that discards Twilio's buffered outbound audio.
func clearOut(streamSID string) wireMessage {
	return wireMessage{Event: "clear", StreamSID: streamSID}
}

// markOut builds a playback checkpoint message.
func markOut(streamSID, name string) wireMessage {
	return wireMessage{
		Event:     EventMark,
		StreamSID: streamSID,
		Mark:      &wireMark{Name: name},
	}
}
