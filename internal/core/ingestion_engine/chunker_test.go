package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextEmpty(t *testing.T) {
	assert.Nil(t, ChunkText("", 1000, 200))
}

func TestChunkTextSingleSpan(t *testing.T) {
	text := "short document"
	spans := ChunkText(text, 1000, 200)
	require.Len(t, spans, 1)
	assert.Equal(t, text, spans[0])
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30) // 300 runes
	spans := ChunkText(text, 100, 20)

	require.True(t, len(spans) > 1)
	for i := 1; i < len(spans); i++ {
		prev := []rune(spans[i-1])
		cur := []rune(spans[i])
		// Consecutive spans share the overlap region.
		assert.Equal(t, string(prev[len(prev)-20:]), string(cur[:20]), "span %d", i)
	}
}

func TestChunkTextStride(t *testing.T) {
	text := strings.Repeat("x", 250)
	spans := ChunkText(text, 100, 20)
	// Spans start at 0, 80 and 160; the last one is truncated at the
	// end of the text.
	require.Len(t, spans, 3)
	assert.Len(t, []rune(spans[0]), 100)
	assert.Len(t, []rune(spans[1]), 100)
	assert.Len(t, []rune(spans[2]), 90)
}

func TestChunkTextShortTailMerged(t *testing.T) {
	// 105 runes with size 100: the 5-rune tail would be degenerate.
	text := strings.Repeat("y", 105)
	spans := ChunkText(text, 100, 0)
	require.Len(t, spans, 1)
	assert.Len(t, []rune(spans[0]), 105)
}

func TestChunkTextDeterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox ", 100)
	a := ChunkText(text, 97, 13)
	b := ChunkText(text, 97, 13)
	assert.Equal(t, a, b)
}

// Concatenating all spans in order, dropping the first `overlap` runes
// of every span after the first, reconstructs the input exactly.
func TestChunkTextRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		size    int
		overlap int
	}{
		{"plain ascii", strings.Repeat("policy text with words ", 80), 100, 20},
		{"multibyte runes", strings.Repeat("héllo wörld ü ", 120), 73, 11},
		{"no overlap", strings.Repeat("z", 512), 100, 0},
		{"tail merged", strings.Repeat("q", 505), 500, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spans := ChunkText(tc.text, tc.size, tc.overlap)
			require.NotEmpty(t, spans)

			var sb strings.Builder
			for i, s := range spans {
				r := []rune(s)
				if i == 0 {
					sb.WriteString(s)
					continue
				}
				require.GreaterOrEqual(t, len(r), tc.overlap)
				sb.WriteString(string(r[tc.overlap:]))
			}
			assert.Equal(t, tc.text, sb.String())
		})
	}
}
