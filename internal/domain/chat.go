package domain

// Chat message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one fragment of a streamed chat response. A provider
// failure mid-stream is delivered as a chunk carrying Err, so the consumer
// sees a visible error event instead of a silently truncated stream.
type StreamChunk struct {
	Content string
	Err     error
}
