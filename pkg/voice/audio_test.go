package voice

import "testing"

func TestDecodeMuLawSample_Extremes(t *testing.T) {
	// 0xFF encodes the smallest positive magnitude, 0x7F the smallest negative.
	if got := DecodeMuLawSample(0xFF); got != 0 {
		t.Errorf("DecodeMuLawSample(0xFF) = %d, want 0", got)
	}
	if got := DecodeMuLawSample(0x7F); got != 0 {
		t.Errorf("DecodeMuLawSample(0x7F) = %d, want 0", got)
	}
	// 0x80 encodes the maximum positive sample in G.711.
	if got := DecodeMuLawSample(0x80); got != 32124 {
		t.Errorf("DecodeMuLawSample(0x80) = %d, want 32124", got)
	}
	if got := DecodeMuLawSample(0x00); got != -32124 {
		t.Errorf("DecodeMuLawSample(0x00) = %d, want -32124", got)
	}
}

func TestDecodeMuLaw_Length(t *testing.T) {
	pcm := DecodeMuLaw(make([]byte, FrameBytes))
	if len(pcm) != FrameBytes {
		t.Errorf("len = %d, want %d", len(pcm), FrameBytes)
	}
}

func TestRMSEnergy_Silence(t *testing.T) {
	// 0xFF frames are µ-law silence.
	silence := make([]byte, FrameBytes)
	for i := range silence {
		silence[i] = 0xFF
	}
	if got := RMSEnergy(silence); got != 0 {
		t.Errorf("RMSEnergy(silence) = %f, want 0", got)
	}
}

func TestRMSEnergy_LoudExceedsQuiet(t *testing.T) {
	loud := make([]byte, FrameBytes)
	quiet := make([]byte, FrameBytes)
	for i := range loud {
		loud[i] = 0x80  // max positive amplitude
		quiet[i] = 0xF0 // low amplitude
	}

	loudE, quietE := RMSEnergy(loud), RMSEnergy(quiet)
	if loudE <= quietE {
		t.Errorf("loud energy %f should exceed quiet energy %f", loudE, quietE)
	}
	if loudE > 1.0 {
		t.Errorf("energy %f should be normalized to [0,1]", loudE)
	}
}

func TestRMSEnergy_Empty(t *testing.T) {
	if got := RMSEnergy(nil); got != 0 {
		t.Errorf("RMSEnergy(nil) = %f, want 0", got)
	}
}
