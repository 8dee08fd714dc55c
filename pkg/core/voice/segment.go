// Package voice holds text-side helpers for the speech pipeline.
package voice

import (
	"strings"
)

// minSpanLen is the shortest span worth synthesizing on its own. Shorter
// sentences are merged into the following one to avoid choppy audio.
const minSpanLen = 12

// Segmenter accumulates reply text and emits complete sentences as they
// close. It exists so synthesis can start on the first sentence while the
// rest of a reply is still being produced.
type Segmenter struct {
	pending strings.Builder
}

// NewSegmenter returns an empty segmenter.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Add appends text and returns every sentence completed so far. Text after
// the last boundary stays pending until a later Add or Flush.
func (g *Segmenter) Add(text string) []string {
	g.pending.WriteString(text)

	content := g.pending.String()
	var out []string
	last := 0
	for i := 0; i < len(content); i++ {
		if !boundaryAt(content, i) {
			continue
		}
		if span := strings.TrimSpace(content[last : i+1]); span != "" {
			out = append(out, span)
		}
		last = i + 1
	}
	if last > 0 {
		rest := content[last:]
		g.pending.Reset()
		g.pending.WriteString(rest)
	}
	return mergeShort(out)
}

// Flush returns the trailing unterminated text, if any, and empties the
// segmenter.
func (g *Segmenter) Flush() string {
	rest := strings.TrimSpace(g.pending.String())
	g.pending.Reset()
	return rest
}

// Pending reports the raw buffered text.
func (g *Segmenter) Pending() string {
	return g.pending.String()
}

// SplitSentences segments a complete reply into synthesis spans. The whole
// input is consumed; a trailing fragment without terminal punctuation is
// returned as the final span. Whitespace-only input yields nil.
func SplitSentences(text string) []string {
	g := NewSegmenter()
	spans := g.Add(text)
	if rest := g.Flush(); rest != "" {
		if n := len(spans); n > 0 && len(rest) < minSpanLen {
			spans[n-1] = spans[n-1] + " " + rest
		} else {
			spans = append(spans, rest)
		}
	}
	return spans
}

// boundaryAt reports whether position i closes a sentence.
func boundaryAt(s string, i int) bool {
	c := s[i]
	if c != '.' && c != '!' && c != '?' {
		return false
	}
	if c == '.' && abbreviationAt(s, i) {
		return false
	}
	// A boundary needs whitespace or end of text after it, so "3.14"
	// and "example.com" do not split.
	if i+1 < len(s) {
		switch s[i+1] {
		case ' ', '\n', '\r', '\t':
		default:
			return false
		}
	}
	return true
}

var abbreviations = map[string]bool{
	"dr.": true, "mr.": true, "mrs.": true, "ms.": true,
	"jr.": true, "sr.": true, "prof.": true, "rev.": true,
	"st.": true, "gen.": true, "col.": true, "lt.": true,
	"sgt.": true, "inc.": true, "ltd.": true, "corp.": true,
	"co.": true, "vs.": true, "etc.": true, "approx.": true,
	"i.e.": true, "e.g.": true, "a.m.": true, "p.m.": true,
	"u.s.": true, "u.k.": true, "no.": true,
}

// abbreviationAt reports whether the period at i ends a known abbreviation
// or a single-letter initial rather than a sentence.
func abbreviationAt(s string, i int) bool {
	start := i
	for start > 0 && s[start-1] != ' ' && s[start-1] != '\n' && s[start-1] != '\t' {
		start--
	}
	word := s[start : i+1]
	if abbreviations[strings.ToLower(word)] {
		return true
	}
	// Initials like "J." in "J. Smith".
	if len(word) == 2 && word[0] >= 'A' && word[0] <= 'Z' {
		return true
	}
	return false
}

// mergeShort folds spans below minSpanLen into their successor so TTS is
// not fed fragments like "Yes." on their own when more text follows.
func mergeShort(spans []string) []string {
	if len(spans) < 2 {
		return spans
	}
	out := spans[:0]
	carry := ""
	for _, s := range spans {
		if carry != "" {
			s = carry + " " + s
			carry = ""
		}
		if len(s) < minSpanLen {
			carry = s
			continue
		}
		out = append(out, s)
	}
	if carry != "" {
		if len(out) > 0 {
			out[len(out)-1] = out[len(out)-1] + " " + carry
		} else {
			out = append(out, carry)
		}
	}
	return out
}
