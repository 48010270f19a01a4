package stt

import "testing"

func TestParseEvent_InterimResult(t *testing.T) {
	data := []byte(`{
		"type": "Results",
		"is_final": false,
		"speech_final": false,
		"channel": {"alternatives": [{"transcript": "hello th", "confidence": 0.82}]}
	}`)

	ev, ok := ParseEvent(data)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Text != "hello th" {
		t.Errorf("Text = %q, want %q", ev.Text, "hello th")
	}
	if ev.IsFinal || ev.SpeechFinal || ev.UtteranceEnd {
		t.Errorf("flags = %+v, want all false", ev)
	}
	if ev.Confidence != 0.82 {
		t.Errorf("Confidence = %f, want 0.82", ev.Confidence)
	}
}

func TestParseEvent_SpeechFinal(t *testing.T) {
	data := []byte(`{
		"type": "Results",
		"is_final": true,
		"speech_final": true,
		"channel": {"alternatives": [{"transcript": "hello there", "confidence": 0.97}]}
	}`)

	ev, ok := ParseEvent(data)
	if !ok {
		t.Fatal("expected event")
	}
	if !ev.IsFinal || !ev.SpeechFinal {
		t.Errorf("IsFinal=%v SpeechFinal=%v, want both true", ev.IsFinal, ev.SpeechFinal)
	}
	if ev.Text != "hello there" {
		t.Errorf("Text = %q, want %q", ev.Text, "hello there")
	}
}

func TestParseEvent_UtteranceEnd(t *testing.T) {
	ev, ok := ParseEvent([]byte(`{"type": "UtteranceEnd", "last_word_end": 3.1}`))
	if !ok {
		t.Fatal("expected event")
	}
	if !ev.UtteranceEnd {
		t.Error("UtteranceEnd = false, want true")
	}
	if ev.Text != "" {
		t.Errorf("Text = %q, want empty", ev.Text)
	}
}

func TestParseEvent_Ignored(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"metadata", `{"type": "Metadata", "request_id": "abc"}`},
		{"speech started", `{"type": "SpeechStarted", "timestamp": 1.0}`},
		{"empty transcript", `{"type": "Results", "channel": {"alternatives": [{"transcript": ""}]}}`},
		{"no alternatives", `{"type": "Results", "channel": {"alternatives": []}}`},
		{"malformed", `{not json`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := ParseEvent([]byte(tc.data)); ok {
				t.Errorf("ParseEvent(%s) returned an event, want ignored", tc.data)
			}
		})
	}
}
