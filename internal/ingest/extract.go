package ingest

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// PlainTextExtractor implements port.TextExtractor for text and source
// files. Binary content is rejected rather than vectorized as garbage.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a plain text extractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// Extract returns the file content as a string, failing on binary input.
func (PlainTextExtractor) Extract(name string, data []byte) (string, error) {
	if bytes.ContainsRune(data, 0) {
		return "", fmt.Errorf("extract %s: binary content", name)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("extract %s: not valid UTF-8", name)
	}
	return string(data), nil
}
