package twilio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Conn wraps a media-stream WebSocket. Reads are single-consumer (the
// connection handler's loop); writes are safe for concurrent use.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool

	mu        sync.Mutex
	streamSID string
}

// NewConn wraps an upgraded WebSocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadMessage blocks for the next inbound message. On a start message it
// latches the stream SID used by all outbound messages.
func (c *Conn) ReadMessage() (Message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return Message{}, err
	}

	msg, err := ParseMessage(data)
	if err != nil {
		return Message{}, err
	}

	if msg.Event == EventStart && msg.Start != nil {
		c.mu.Lock()
		c.streamSID = msg.Start.StreamSID
		c.mu.Unlock()
	}
	return msg, nil
}

// StreamSID returns the stream identifier, empty before the start message.
func (c *Conn) StreamSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamSID
}

// SendAudio sends one µ-law payload to the caller.
func (c *Conn) SendAudio(payload []byte) error {
	return c.writeJSON(mediaOut(c.StreamSID(), payload))
}

// Clear discards audio Twilio has buffered but not yet played. Sent on
// barge-in so the caller hears the agent stop.
func (c *Conn) Clear() error {
	return c.writeJSON(clearOut(c.StreamSID()))
}

// SendMark sends a playback checkpoint; Twilio echoes it back once all audio
// sent before it has played.
func (c *Conn) SendMark(name string) error {
	return c.writeJSON(markOut(c.StreamSID(), name))
}

func (c *Conn) writeJSON(msg wireMessage) error {
	if c.closed.Load() {
		return fmt.Errorf("connection closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

// Close shuts the WebSocket down. Idempotent.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}
