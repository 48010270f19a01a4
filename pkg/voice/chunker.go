// Package voice provides audio and text utilities shared by the call pipeline:
// sentence-level chunking of streamed LLM text and µ-law signal helpers.
package voice

import (
	"strings"
	"sync"
)

// SentenceChunker accumulates streamed text deltas and emits complete
// sentences. Synthesizing whole sentences gives better prosody and lets the
// first sentence reach TTS while the model is still generating.
type SentenceChunker struct {
	mu  sync.Mutex
	buf strings.Builder
}

// NewSentenceChunker creates an empty chunker.
func NewSentenceChunker() *SentenceChunker {
	return &SentenceChunker{}
}

// Add appends a delta and returns any sentences completed by it, in order.
func (c *SentenceChunker) Add(delta string) []string {
	if delta == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.WriteString(delta)
	content := c.buf.String()

	var sentences []string
	start := 0
	for i := 0; i < len(content); i++ {
		if !endsSentence(content, i) {
			continue
		}
		if s := strings.TrimSpace(content[start : i+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if start > 0 {
		rest := content[start:]
		c.buf.Reset()
		c.buf.WriteString(rest)
	}
	return sentences
}

// Flush returns any remaining partial sentence and resets the chunker.
// Call when the LLM stream ends.
func (c *SentenceChunker) Flush() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rest := strings.TrimSpace(c.buf.String())
	c.buf.Reset()
	return rest
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

// endsSentence reports whether position i in s terminates a sentence: a
// terminator that is not part of an abbreviation and is followed by
// whitespace (or nothing, once more deltas arrive the boundary re-checks).
func endsSentence(s string, i int) bool {
	if !isTerminator(s[i]) {
		return false
	}
	// Only commit a boundary once the following rune is known whitespace.
	// A terminator at the very end of the buffer may be mid-number ("3.14")
	// or mid-ellipsis, so it waits for the next delta or Flush.
	if i+1 >= len(s) {
		return false
	}
	next := s[i+1]
	if isTerminator(next) {
		// Let the caller absorb the run; decide at its last byte.
		return false
	}
	if next != ' ' && next != '\n' && next != '\r' && next != '\t' {
		return false
	}
	if s[i] == '.' && isAbbreviation(s[:i+1]) {
		return false
	}
	return true
}

// abbreviations that commonly end with a period mid-sentence.
var abbreviations = map[string]struct{}{
	"dr.": {}, "mr.": {}, "mrs.": {}, "ms.": {}, "jr.": {}, "sr.": {},
	"prof.": {}, "st.": {}, "vs.": {}, "etc.": {}, "inc.": {}, "ltd.": {},
	"co.": {}, "i.e.": {}, "e.g.": {}, "a.m.": {}, "p.m.": {},
	"u.s.": {}, "u.k.": {},
}

func isAbbreviation(s string) bool {
	idx := strings.LastIndexAny(s, " \n\t")
	word := s[idx+1:]
	if _, ok := abbreviations[strings.ToLower(word)]; ok {
		return true
	}
	// Single-letter initials like "J." in "J. Smith".
	if len(word) == 2 && word[0] >= 'A' && word[0] <= 'Z' {
		return true
	}
	return false
}
