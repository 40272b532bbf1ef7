package text

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a\n\n b\t\tc  "))
	assert.Equal(t, "", Normalize(" \n\t "))
}

func TestSplit_Empty(t *testing.T) {
	assert.Nil(t, Split("", 100, 10))
	assert.Nil(t, Split("   \n\t  ", 100, 10))
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	chunks := Split("just a short paragraph", 100, 20)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a short paragraph", chunks[0])
}

func TestSplit_WindowsRespectSize(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor sit amet. ", 200)
	chunks := Split(long, 500, 100)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 500)
		assert.NotEmpty(t, c)
	}
}

func TestSplit_OverlapSharesContext(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&sb, "w%03d ", i)
	}
	chunks := Split(sb.String(), 200, 50)
	require.Greater(t, len(chunks), 1)

	// With a positive overlap, the head of each chunk reappears in the tail
	// of the previous one.
	for i := 1; i < len(chunks); i++ {
		head := strings.Fields(chunks[i])[0]
		assert.Contains(t, chunks[i-1], head, "chunk %d head should overlap previous", i)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	long := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100)
	a := Split(long, 300, 60)
	b := Split(long, 300, 60)
	assert.Equal(t, a, b)
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	long := strings.Repeat("One sentence here. ", 100)
	chunks := Split(long, 200, 0)
	require.Greater(t, len(chunks), 1)
	// Every non-final chunk should end at a sentence boundary, not mid-word.
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c, "."), "chunk should end on sentence: %q", c[len(c)-10:])
	}
}

func TestSplit_NoSpacesHardCut(t *testing.T) {
	long := strings.Repeat("x", 1000)
	chunks := Split(long, 300, 50)
	require.Greater(t, len(chunks), 1)
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	assert.GreaterOrEqual(t, total, 1000)
}

func TestSplit_Unicode(t *testing.T) {
	long := strings.Repeat("héllo wörld. ", 200)
	chunks := Split(long, 100, 20)
	require.NotEmpty(t, chunks)
	joined := strings.Join(chunks, " ")
	assert.Contains(t, joined, "héllo wörld")
}
