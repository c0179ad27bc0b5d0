package domain

import "errors"

// Error kinds surfaced by the pipeline. Callers wrap these with fmt.Errorf and
// %w, and match with errors.Is.
var (
	// ErrExtraction means a document could not be read or converted to text.
	ErrExtraction = errors.New("extraction failed")
	// ErrEmbedding means the embedding provider failed, timed out, or was
	// given unusable input.
	ErrEmbedding = errors.New("embedding failed")
	// ErrCompletion means the chat completion provider failed or timed out.
	ErrCompletion = errors.New("completion failed")
	// ErrIndexIO means loading or saving a persisted artifact failed.
	ErrIndexIO = errors.New("index io failed")
	// ErrNotFound means a chunk position has no record in the chunk store.
	// Non-fatal at query time: the result is skipped.
	ErrNotFound = errors.New("chunk not found")
)
