package twilio

import (
	"encoding/xml"
	"fmt"
)

// TwiML types for the <Connect><Stream> response that bridges an incoming
// call onto the media-stream WebSocket.
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConnectStreamTwiML renders the webhook response that connects the call to
// the media-stream endpoint. params become custom stream parameters, echoed
// back in the start message.
func ConnectStreamTwiML(wsURL string, params map[string]string) ([]byte, error) {
	stream := twimlStream{URL: wsURL}
	// Stable order keeps the output deterministic.
	for _, name := range []string{"from", "to"} {
		if v, ok := params[name]; ok {
			stream.Parameters = append(stream.Parameters, twimlParameter{Name: name, Value: v})
		}
	}
	for name, v := range params {
		if name == "from" || name == "to" {
			continue
		}
		stream.Parameters = append(stream.Parameters, twimlParameter{Name: name, Value: v})
	}

	body, err := xml.MarshalIndent(twimlResponse{Connect: &twimlConnect{Stream: stream}}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
