package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragtutor/internal/domain"
)

func TestNewSentenceChunkerValidation(t *testing.T) {
	cases := []struct {
		name    string
		max     int
		overlap int
	}{
		{"zero max", 0, 0},
		{"negative max", -1, 0},
		{"negative overlap", 10, -1},
		{"overlap equals max", 10, 10},
		{"overlap above max", 10, 11},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSentenceChunker(tc.max, tc.overlap, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}

	_, err := NewSentenceChunker(10, 0, nil)
	require.NoError(t, err)
}

func TestChunkEmptyInput(t *testing.T) {
	c, err := NewSentenceChunker(10, 2, nil)
	require.NoError(t, err)
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunkRespectsTokenBound(t *testing.T) {
	c, err := NewSentenceChunker(12, 3, nil)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "sentence number %d has exactly seven words. ", i)
	}
	chunks := c.Chunk(sb.String())
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.LessOrEqualf(t, c.TokenCount(chunk), 12, "chunk %d over budget", i)
		assert.Equal(t, strings.TrimSpace(chunk), chunk)
	}
}

func TestChunkGreedyPacking(t *testing.T) {
	// 48 sentences of 50 words each under a 600-token budget pack
	// exactly 12 sentences per chunk.
	c, err := NewSentenceChunker(600, 64, nil)
	require.NoError(t, err)

	sentence := strings.Repeat("word ", 49) + "end."
	require.Equal(t, 50, c.TokenCount(sentence))
	text := strings.TrimSpace(strings.Repeat(sentence+" ", 48))

	chunks := c.Chunk(text)
	require.Len(t, chunks, 4)
	for _, chunk := range chunks {
		assert.Equal(t, 600, c.TokenCount(chunk))
	}
}

func TestChunkOversizedSentenceWindows(t *testing.T) {
	c, err := NewSentenceChunker(10, 3, nil)
	require.NoError(t, err)

	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	// no sentence punctuation, so this is one oversized sentence
	chunks := c.Chunk(strings.Join(words, " "))
	require.Len(t, chunks, 4)

	tok := WordTokenizer{}
	for i := 0; i < len(chunks)-1; i++ {
		cur := tok.Encode(chunks[i])
		next := tok.Encode(chunks[i+1])
		require.Len(t, cur, 10)
		// consecutive windows share exactly the overlap
		assert.Equal(t, cur[len(cur)-3:], next[:3])
	}
	// nothing dropped: last window ends with the final word
	last := tok.Encode(chunks[len(chunks)-1])
	assert.Equal(t, "w24", last[len(last)-1])
}

func TestChunkDeterministic(t *testing.T) {
	c, err := NewSentenceChunker(8, 2, nil)
	require.NoError(t, err)
	text := "First sentence here. Second one follows! A third, longer sentence with rather many words inside it? Short end."
	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestChunkNormalizesWhitespace(t *testing.T) {
	c, err := NewSentenceChunker(20, 0, nil)
	require.NoError(t, err)
	chunks := c.Chunk("one   two\n\nthree.\tfour five.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "one two three. four five.", chunks[0])
}

func TestSplitSentencesKeepsPunctuation(t *testing.T) {
	got := splitSentences("Hello there. How are you? Fine! Trailing tail")
	assert.Equal(t, []string{"Hello there.", "How are you?", "Fine!", "Trailing tail"}, got)
}
