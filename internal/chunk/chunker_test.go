package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "word"
	}
	return strings.Join(words, " ")
}

func TestSplit_ShortInputYieldsNoChunks(t *testing.T) {
	chunks := Split("too short")
	assert.Empty(t, chunks)
}

func TestSplit_SingleParagraphWithinBounds(t *testing.T) {
	text := "Hello world. This is a test paragraph with more than ten words overall."
	chunks := Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ParagraphIndex)
	assert.Equal(t, text, chunks[0].Text)
}

func TestSplit_BoundsRespected(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString("## Heading\n\n")
		b.WriteString(repeatWords(220))
		b.WriteString("\n\n")
	}
	chunks := Split(b.String())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		wc := wordCount(c.Text)
		assert.GreaterOrEqual(t, wc, minWords)
		assert.LessOrEqual(t, wc, maxWords)
	}
}

func TestSplit_ParagraphIndexIsContiguous(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString("# Section\n\n")
		b.WriteString(repeatWords(180))
		b.WriteString("\n\n")
	}
	chunks := Split(b.String())
	for i, c := range chunks {
		assert.Equal(t, i, c.ParagraphIndex)
	}
}

func TestSplit_FrontmatterInvariance(t *testing.T) {
	body := "Some notes here with quite a few words so this paragraph clears the minimum easily."
	withFrontmatter := "---\ntitle: Example\ntags: [a, b]\n---\n" + body

	bodyChunks := Split(body)
	fmChunks := Split(withFrontmatter)

	require.Equal(t, len(bodyChunks), len(fmChunks))
	for i := range bodyChunks {
		assert.Equal(t, bodyChunks[i].Text, fmChunks[i].Text)
	}
}

func TestSplit_VeryLongParagraphHardSplits(t *testing.T) {
	text := repeatWords(900)
	chunks := Split(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, wordCount(c.Text), maxWords)
	}
}

func TestSplit_NaturalBreakAtHeading(t *testing.T) {
	text := repeatWords(210) + "\n\n## Next Section\n\n" + repeatWords(210)
	chunks := Split(text)
	assert.GreaterOrEqual(t, len(chunks), 2)
}

func TestSplit_OversizedParagraphKeepsSentencePunctuation(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString(repeatWords(5))
		b.WriteString(". ")
	}
	chunks := Split(b.String())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Contains(t, c.Text, ".")
	}
}
