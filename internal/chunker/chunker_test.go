package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkEmptyInput(t *testing.T) {
	c := New(DefaultConfig())

	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  \n"))
}

func TestChunkShortContentIdentity(t *testing.T) {
	c := New(DefaultConfig())

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "A short post about Go generics.", "A short post about Go generics."},
		{"trimmed", "  padded content  \n", "padded content"},
		{"multi paragraph", "First paragraph.\n\nSecond paragraph.", "First paragraph.\n\nSecond paragraph."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := c.Chunk(tt.input)
			require.Len(t, chunks, 1)
			assert.Equal(t, tt.want, chunks[0])
		})
	}
}

func TestChunkExactThreshold(t *testing.T) {
	c := New(DefaultConfig())

	text := strings.Repeat("x", 500)
	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkParagraphSplitWithOverlap(t *testing.T) {
	c := New(DefaultConfig())

	para1 := strings.TrimSpace(strings.Repeat("alpha beta gamma ", 18))
	para2 := strings.TrimSpace(strings.Repeat("delta epsilon zeta ", 16))
	text := para1 + "\n\n" + para2

	chunks := c.Chunk(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0])
	assert.True(t, strings.HasSuffix(chunks[1], para2))

	// The second chunk starts with overlap carried from the first.
	overlap := strings.TrimSuffix(chunks[1], " "+para2)
	assert.NotEmpty(t, overlap)
	assert.True(t, strings.HasSuffix(chunks[0], overlap))
}

func TestChunkParagraphCoverage(t *testing.T) {
	c := New(DefaultConfig())

	paras := []string{
		strings.TrimSpace(strings.Repeat("one fish two fish ", 15)),
		strings.TrimSpace(strings.Repeat("red fish blue fish ", 15)),
		strings.TrimSpace(strings.Repeat("old fish new fish ", 15)),
		"A closing paragraph long enough to survive the minimum size cutoff.",
	}
	text := strings.Join(paras, "\n\n")

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)

	joined := strings.Join(chunks, "\n")
	for _, p := range paras {
		assert.Contains(t, joined, p)
	}
}

func TestChunkOversizedParagraph(t *testing.T) {
	c := New(DefaultConfig())

	sentence := "The quick brown fox jumps over the lazy sleeping dog again."
	para := sentence
	for i := 0; i < 19; i++ {
		para += " " + sentence
	}
	require.Greater(t, len(para), 500)

	chunks := c.Chunk(para)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 500, "chunk %d exceeds max size", i)
		assert.Contains(t, chunk, "quick brown fox")
	}
}

func TestChunkDropsShortTail(t *testing.T) {
	c := New(DefaultConfig())

	// The trailing word produces a final chunk under MinChunkSize,
	// so it is dropped rather than emitted.
	para1 := strings.Repeat("a", 453) + " " + strings.Repeat("z", 45)
	text := para1 + "\n\n" + "ok"

	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, para1, chunks[0])
}

func TestChunkDeterministic(t *testing.T) {
	c := New(DefaultConfig())

	text := strings.TrimSpace(strings.Repeat("deterministic output every single time ", 30))
	first := c.Chunk(text)
	second := c.Chunk(text)
	assert.Equal(t, first, second)
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultConfig(), c.cfg)
}
