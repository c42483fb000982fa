package domain

// MetadataKnowledge is the metadata key carrying the knowledge tag on every
// stored document.
const MetadataKnowledge = "knowledge"

// Document is a chunk of text with metadata, ready for vectorization.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// SimilarDocument is a retrieval hit with its cosine similarity score.
type SimilarDocument struct {
	Document
	Similarity float64 `json:"similarity"`
}
