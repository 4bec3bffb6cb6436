package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxLength bounds chunk content in runes.
const DefaultMaxLength = 400

// SentenceChunker packs whole sentences into chunks of at most maxLength
// runes and slices fixed-width windows when the text has no sentence breaks.
type SentenceChunker struct {
	DefaultMax int
}

func NewSentenceChunker(defaultMax int) *SentenceChunker {
	if defaultMax <= 0 {
		defaultMax = DefaultMaxLength
	}
	return &SentenceChunker{DefaultMax: defaultMax}
}

func (c *SentenceChunker) Chunk(text string, maxLength int) []string {
	if text == "" {
		return nil
	}
	if maxLength <= 0 {
		maxLength = c.DefaultMax
	}
	if utf8.RuneCountInString(text) <= maxLength {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return splitFixed(text, maxLength)
	}

	out := make([]string, 0, len(sentences))
	var buf strings.Builder
	bufLen := 0
	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)
		if bufLen > 0 && bufLen+1+n > maxLength {
			out = append(out, buf.String())
			buf.Reset()
			bufLen = 0
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(sentence)
		bufLen += n
	}
	if bufLen > 0 {
		out = append(out, buf.String())
	}
	return out
}

// splitSentences breaks after '.', '!' or '?' when followed by whitespace.
// Terminators stay with their sentence; the separating whitespace is dropped.
func splitSentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0, 8)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func splitFixed(text string, width int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/width+1)
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
