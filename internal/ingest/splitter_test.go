package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortContent(t *testing.T) {
	s := NewSplitter(512)

	chunks := s.Split("package main\n\nfunc main() {}\n")

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "func main()")
}

func TestSplitEmptyContent(t *testing.T) {
	s := NewSplitter(512)

	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("\n\n\n"))
}

func TestSplitRespectsTokenBudget(t *testing.T) {
	s := NewSplitter(20)

	// 30 lines of 5 words each, far over a 20 word budget.
	line := "alpha beta gamma delta epsilon"
	content := strings.Repeat(line+"\n", 30)

	chunks := s.Split(content)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		// Budget plus the 3 overlap lines carried from the previous chunk.
		assert.LessOrEqual(t, len(strings.Fields(c)), 20+3*5)
	}
}

func TestSplitOverlapsConsecutiveChunks(t *testing.T) {
	s := NewSplitter(10)

	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, strings.Repeat("word ", 5))
	}
	chunks := s.Split(strings.Join(lines, "\n"))
	require.Greater(t, len(chunks), 1)

	first := strings.Split(chunks[0], "\n")
	second := strings.Split(chunks[1], "\n")
	assert.Equal(t, first[len(first)-1], second[0])
}
