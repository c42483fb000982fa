package ingest

import "strings"

// Splitter cuts a document into token-bounded chunks. Token counting is
// whitespace-word based, which tracks model tokenizers closely enough for
// chunk sizing.
type Splitter struct {
	maxTokens    int
	overlapLines int
}

// NewSplitter creates a splitter with the given chunk budget. A budget of 0
// or less falls back to 512 tokens.
func NewSplitter(maxTokens int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Splitter{maxTokens: maxTokens, overlapLines: 3}
}

// Split cuts content into chunks of at most maxTokens words, keeping a few
// trailing lines of overlap between consecutive chunks so retrieval does not
// lose context at chunk boundaries.
func (s *Splitter) Split(content string) []string {
	lines := strings.Split(content, "\n")
	var chunks []string
	var current []string
	currentLen := 0

	for _, line := range lines {
		wordCount := len(strings.Fields(line))
		if currentLen+wordCount > s.maxTokens && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			overlap := s.overlapLines
			if len(current) < overlap {
				overlap = len(current)
			}
			current = append([]string(nil), current[len(current)-overlap:]...)
			currentLen = 0
			for _, l := range current {
				currentLen += len(strings.Fields(l))
			}
		}
		current = append(current, line)
		currentLen += wordCount
	}

	if len(current) > 0 && strings.TrimSpace(strings.Join(current, "\n")) != "" {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}
