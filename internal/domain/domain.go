package domain

import "context"

// Record is a single ingested chunk: its text and the embedding computed for it.
// Records are append-only and joined to the vector index purely by position.
type Record struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Hit is a single nearest-neighbor match returned by the vector index.
type Hit struct {
	Position int
	Distance float32
}

// Extractor converts an uploaded document into a single plain-text string.
type Extractor interface {
	Extract(path string) (string, error)
}

// Chunker splits extracted text into consecutive windows of at most maxTokens
// tokens. The same text and maxTokens always produce the same chunks.
type Chunker interface {
	Split(text string, maxTokens int) []string
}

// Embedder maps a text string to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer produces a chat completion from a system and a user message.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
