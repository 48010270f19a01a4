package voice

import "math"

// Telephony audio format: G.711 µ-law, 8 kHz mono, 8 bits per sample.
// Twilio Media Streams deliver and accept this format directly.
const (
	SampleRate = 8000

	// FrameBytes is one 20 ms frame of µ-law audio.
	FrameBytes = 160
)

const muLawBias = 0x84

// DecodeMuLawSample expands one G.711 µ-law byte to a 16-bit PCM sample.
func DecodeMuLawSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F

	sample := (int16(mantissa)<<3 + muLawBias) << exponent
	sample -= muLawBias
	if sign != 0 {
		return -sample
	}
	return sample
}

// DecodeMuLaw expands a µ-law payload to 16-bit PCM samples.
func DecodeMuLaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = DecodeMuLawSample(b)
	}
	return out
}

// RMSEnergy computes the root-mean-square energy of a µ-law payload,
// normalized to [0.0, 1.0]. Used for barge-in speech detection.
func RMSEnergy(mulaw []byte) float64 {
	if len(mulaw) == 0 {
		return 0
	}

	var sum float64
	for _, b := range mulaw {
		normalized := float64(DecodeMuLawSample(b)) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(len(mulaw)))
}
