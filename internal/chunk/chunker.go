// Package chunk splits a note's text into ordered, word-bounded chunks at
// natural break points. Chunking is pure and deterministic: no I/O, no
// randomness, no clock reads.
package chunk

import (
	"regexp"
	"strings"
)

const (
	targetWords = 200
	maxWords    = 250
	minWords    = 10
)

var (
	headingPattern     = regexp.MustCompile(`^#{1,6}\s`)
	orderedListPattern = regexp.MustCompile(`^\s*\d+\.\s`)
	unorderedPattern   = regexp.MustCompile(`^\s*[-*+]\s`)
	fencePattern       = regexp.MustCompile("^\\s*(```|~~~)")
	rulePattern        = regexp.MustCompile(`^\s*([-*_])(\s*\1){2,}\s*$`)
	blockquotePattern  = regexp.MustCompile(`^\s*>\s`)
	wordPattern        = regexp.MustCompile(`\S+`)
	sentenceBoundary   = regexp.MustCompile(`[.!?]+\s+`)
)

// Chunk is an ordered span of source text, not yet attached to a source
// path or embedding; the caller (Indexer) fills in the rest of the
// persisted record.
type Chunk struct {
	ParagraphIndex int
	Text           string
}

type lineKind int

const (
	kindOther lineKind = iota
	kindBlank
	kindHeading
	kindOrderedList
	kindUnorderedList
	kindFence
	kindRule
	kindBlockquote
)

func classify(line string) lineKind {
	trimmed := strings.TrimRight(line, "\r")
	switch {
	case strings.TrimSpace(trimmed) == "":
		return kindBlank
	case fencePattern.MatchString(trimmed):
		return kindFence
	case headingPattern.MatchString(trimmed):
		return kindHeading
	case rulePattern.MatchString(trimmed):
		return kindRule
	case orderedListPattern.MatchString(trimmed):
		return kindOrderedList
	case unorderedPattern.MatchString(trimmed):
		return kindUnorderedList
	case blockquotePattern.MatchString(trimmed):
		return kindBlockquote
	default:
		return kindOther
	}
}

// isNaturalBreak reports whether curLine is a natural break point given
// the line that precedes it in the buffer, per the rules in §4.2:
// a blank-to-nonblank transition, a heading/list/fence/rule/blockquote
// line, or the first non-blank, non-list line after a run of list items.
func isNaturalBreak(prevLine, curLine string) bool {
	cur := classify(curLine)
	prev := classify(prevLine)

	if prev == kindBlank && cur != kindBlank {
		return true
	}
	switch cur {
	case kindHeading, kindFence, kindRule, kindBlockquote, kindOrderedList, kindUnorderedList:
		return true
	}
	if (prev == kindOrderedList || prev == kindUnorderedList) && cur != kindBlank && cur != prev {
		return true
	}
	return false
}

func wordCount(s string) int {
	return len(wordPattern.FindAllString(s, -1))
}

var frontmatterDelim = regexp.MustCompile(`^---\s*$`)

// stripFrontmatter removes a leading frontmatter block delimited by lines
// that are exactly "---", returning the remaining body.
func stripFrontmatter(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || !frontmatterDelim.MatchString(strings.TrimRight(lines[0], "\r")) {
		return text
	}
	for i := 1; i < len(lines); i++ {
		if frontmatterDelim.MatchString(strings.TrimRight(lines[i], "\r")) {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	// Unterminated frontmatter block: treat the whole thing as body,
	// since stripping it would silently discard real content.
	return text
}

// Split strips any leading frontmatter block and splits the remainder
// into ordered chunks of roughly targetWords words, never exceeding
// maxWords, dropping any chunk shorter than minWords, and assigning
// contiguous ParagraphIndex values in emission order.
func Split(text string) []Chunk {
	body := stripFrontmatter(text)
	lines := strings.Split(body, "\n")

	var rawChunks []string
	var buf []string
	bufWords := 0
	prevLine := ""

	flush := func() {
		if len(buf) == 0 {
			return
		}
		rawChunks = append(rawChunks, strings.Join(buf, "\n"))
		buf = nil
		bufWords = 0
	}

	for _, line := range lines {
		lw := wordCount(line)
		if bufWords+lw > maxWords {
			flush()
		} else if bufWords+lw > targetWords && isNaturalBreak(prevLine, line) {
			flush()
		}
		buf = append(buf, line)
		bufWords += lw
		prevLine = line
	}
	flush()

	var final []string
	for _, c := range rawChunks {
		final = append(final, splitOversized(c)...)
	}

	var chunks []Chunk
	idx := 0
	for _, c := range final {
		c = strings.Trim(c, "\n")
		if wordCount(c) < minWords {
			continue
		}
		chunks = append(chunks, Chunk{ParagraphIndex: idx, Text: c})
		idx++
	}
	return chunks
}

// splitSentences breaks text at sentence boundaries, keeping the
// terminating punctuation and trailing whitespace attached to each piece
// so that concatenating the result reproduces text exactly.
func splitSentences(text string) []string {
	bounds := sentenceBoundary.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return []string{text}
	}
	var out []string
	start := 0
	for _, b := range bounds {
		out = append(out, text[start:b[1]])
		start = b[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// splitOversized handles the case where a single natural chunk (typically
// one very long paragraph with no internal break points) still exceeds
// maxWords: first try sentence boundaries, then fall back to a hard split
// every maxWords words.
func splitOversized(text string) []string {
	if wordCount(text) <= maxWords {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) > 1 {
		var out []string
		var buf strings.Builder
		bufWords := 0
		for _, s := range sentences {
			sw := wordCount(s)
			if bufWords > 0 && bufWords+sw > maxWords {
				out = append(out, buf.String())
				buf.Reset()
				bufWords = 0
			}
			buf.WriteString(s)
			bufWords += sw
		}
		if buf.Len() > 0 {
			out = append(out, buf.String())
		}
		var result []string
		for _, piece := range out {
			result = append(result, splitOversized(piece)...)
		}
		return result
	}

	// No sentence boundaries found (or a single sentence still too long):
	// force-split into maxWords-word pieces.
	words := wordPattern.FindAllString(text, -1)
	var result []string
	for i := 0; i < len(words); i += maxWords {
		end := i + maxWords
		if end > len(words) {
			end = len(words)
		}
		result = append(result, strings.Join(words[i:end], " "))
	}
	return result
}
