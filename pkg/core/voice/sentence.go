// Package voice derives speakable audio from streamed assistant text.
//
// Text arrives as arbitrary fragments with no alignment to word or sentence
// boundaries. The Segmenter re-chunks that stream into sentence groups large
// enough to synthesize naturally, and the Speaker feeds those groups to a
// TTS provider one at a time so audio chunks come back in spoken order.
package voice

import (
	"strings"
)

// DefaultMinGroupLen is the minimum length of a sentence group emitted
// mid-stream. Shorter groups are held until more text arrives; very short
// utterances produce choppy, unnatural synthesis.
const DefaultMinGroupLen = 30

// Segmenter re-chunks a fragment stream into sentence groups.
//
// Each Push appends a fragment and may release one group: the longest run of
// complete sentences, with their trailing whitespace kept intact so that
// concatenating every emitted group plus the final Flush reproduces the
// input byte for byte. The final sentence is always held back, complete or
// not, because a terminator at the edge of the buffer may still be mid-token
// ("3." followed by "14").
type Segmenter struct {
	minGroupLen int
	buf         strings.Builder
}

// NewSegmenter creates a Segmenter. A non-positive minGroupLen selects
// DefaultMinGroupLen.
func NewSegmenter(minGroupLen int) *Segmenter {
	if minGroupLen <= 0 {
		minGroupLen = DefaultMinGroupLen
	}
	return &Segmenter{minGroupLen: minGroupLen}
}

// Push appends a fragment and returns the next sentence group, if one is
// ready. A group is ready when at least one complete sentence can be
// released and the joined text meets the minimum group length.
func (s *Segmenter) Push(fragment string) (string, bool) {
	s.buf.WriteString(fragment)
	content := s.buf.String()

	ends := sentenceEnds(content)
	if len(ends) == 0 {
		return "", false
	}

	// Hold the final segment: the tail past the last boundary if there is
	// one, otherwise the last complete sentence itself.
	cut := ends[len(ends)-1]
	if cut == len(content) {
		if len(ends) == 1 {
			return "", false
		}
		cut = ends[len(ends)-2]
	}
	if cut < s.minGroupLen {
		return "", false
	}

	s.buf.Reset()
	s.buf.WriteString(content[cut:])
	return content[:cut], true
}

// Flush returns whatever text remains and resets the segmenter. It is called
// once the upstream text stream ends.
func (s *Segmenter) Flush() (string, bool) {
	rest := s.buf.String()
	s.buf.Reset()
	return rest, rest != ""
}

// Pending returns the held text without consuming it.
func (s *Segmenter) Pending() string {
	return s.buf.String()
}

// sentenceEnds returns the offsets just past each sentence boundary in s,
// where a boundary is a terminator plus the whitespace run that follows it.
func sentenceEnds(s string) []int {
	var ends []int
	for i := 0; i < len(s); i++ {
		if !isSentenceEnd(s, i) {
			continue
		}
		j := i + 1
		for j < len(s) && isSpaceByte(s[j]) {
			j++
		}
		ends = append(ends, j)
		i = j - 1
	}
	return ends
}

// isSentenceEnd reports whether the byte at i terminates a sentence. A
// terminator only counts when followed by whitespace; at the edge of the
// buffer the stream may continue with more of the same token.
func isSentenceEnd(s string, i int) bool {
	switch s[i] {
	case '.', '!', '?':
	default:
		return false
	}
	if i+1 >= len(s) || !isSpaceByte(s[i+1]) {
		return false
	}
	if s[i] == '.' && isAbbreviation(s, i) {
		return false
	}
	return true
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

// abbreviations that end in a period but do not end a sentence, lowercased.
var abbreviations = map[string]struct{}{
	"dr.": {}, "mr.": {}, "mrs.": {}, "ms.": {}, "jr.": {}, "sr.": {},
	"prof.": {}, "rev.": {}, "gen.": {}, "col.": {}, "lt.": {}, "sgt.": {},
	"inc.": {}, "ltd.": {}, "corp.": {}, "co.": {}, "vs.": {}, "etc.": {},
	"i.e.": {}, "e.g.": {}, "a.m.": {}, "p.m.": {}, "u.s.": {}, "u.k.": {},
}

// isAbbreviation reports whether the period at i most likely belongs to an
// abbreviation or an initial rather than ending a sentence.
func isAbbreviation(s string, i int) bool {
	start := i
	for start > 0 && !isSpaceByte(s[start-1]) {
		start--
	}
	word := strings.ToLower(s[start : i+1])
	if _, ok := abbreviations[word]; ok {
		return true
	}
	// A lone capital letter before the period is an initial ("Ulysses S. Grant").
	if i-start == 1 && s[start] >= 'A' && s[start] <= 'Z' {
		return true
	}
	return false
}
