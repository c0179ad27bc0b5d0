package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ragchat/internal/chunkstore"
	"ragchat/internal/domain"
	"ragchat/internal/guardrails"
	"ragchat/internal/vectorstore"
)

// Persisted artifact names under the data directory.
const (
	indexFile      = "index.gob"
	chunksFile     = "chunks.json"
	guardrailsFile = "guardrails.txt"
)

const assistantPersona = "You are a helpful assistant."

// NoContextReply is returned without calling the completion provider when
// retrieval produces no context at all.
const NoContextReply = "I couldn't find any relevant information in the uploaded documents. Please upload a document first."

// Options bounds the retrieval pipeline.
type Options struct {
	DataDir        string
	MaxChunkTokens int
	TopK           int
}

// Pipeline orchestrates ingest (extract, chunk, embed, index) and query
// (embed, search, assemble context, complete). A single RWMutex makes ingest
// the only writer: the index position i always names chunk record i.
type Pipeline struct {
	mu        sync.RWMutex
	extractor domain.Extractor
	chunker   domain.Chunker
	embedder  domain.Embedder
	completer domain.Completer
	index     *vectorstore.Index
	chunks    *chunkstore.Store
	guard     *guardrails.Store
	opts      Options
	log       *slog.Logger
}

func NewPipeline(ex domain.Extractor, ch domain.Chunker, em domain.Embedder, co domain.Completer, opts Options, logger *slog.Logger) *Pipeline {
	if opts.MaxChunkTokens <= 0 {
		opts.MaxChunkTokens = 500
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: ex,
		chunker:   ch,
		embedder:  em,
		completer: co,
		index:     vectorstore.NewIndex(),
		chunks:    chunkstore.NewStore(),
		guard:     guardrails.NewStore(filepath.Join(opts.DataDir, guardrailsFile)),
		opts:      opts,
		log:       logger,
	}
}

// LoadState populates the index and chunk store from the data directory.
// Missing artifacts leave empty state. Because the index is written before
// the chunk store on ingest, a crash between the two writes can leave the
// index longer; the excess tail is trimmed. The reverse gap is repaired from
// the embeddings stored in the chunk records.
func (p *Pipeline) LoadState() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.MkdirAll(p.opts.DataDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	if err := p.index.Load(filepath.Join(p.opts.DataDir, indexFile)); err != nil {
		return err
	}
	if err := p.chunks.Load(filepath.Join(p.opts.DataDir, chunksFile)); err != nil {
		return err
	}
	if n := p.index.Len(); n > p.chunks.Len() {
		p.log.Warn("index ahead of chunk store, trimming", "index", n, "chunks", p.chunks.Len())
		p.index.Truncate(p.chunks.Len())
	}
	for i := p.index.Len(); i < p.chunks.Len(); i++ {
		rec, err := p.chunks.Get(i)
		if err != nil {
			break
		}
		p.index.Add(rec.Embedding)
		p.log.Warn("rebuilt index vector from chunk record", "position", i)
	}
	p.log.Info("state loaded", "chunks", p.chunks.Len())
	return nil
}

// Ingest extracts, chunks, and embeds one document, then appends everything
// to the index and chunk store and persists both. All embeddings are buffered
// in memory first: a failure on any chunk aborts the whole ingest and leaves
// both in-memory and persisted state exactly as they were. Returns the number
// of chunks ingested.
func (p *Pipeline) Ingest(ctx context.Context, path string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	text, err := p.extractor.Extract(path)
	if err != nil {
		return 0, err
	}
	pieces := p.chunker.Split(text, p.opts.MaxChunkTokens)
	if len(pieces) == 0 {
		p.log.Info("document yielded no chunks", "path", path)
		return 0, nil
	}

	records := make([]domain.Record, 0, len(pieces))
	for _, piece := range pieces {
		vec, err := p.embedder.Embed(ctx, piece)
		if err != nil {
			return 0, err
		}
		records = append(records, domain.Record{Text: piece, Embedding: vec})
	}

	// Every chunk embedded; only now touch shared state.
	for _, rec := range records {
		p.index.Add(rec.Embedding)
		p.chunks.Append(rec)
	}
	// Index first, chunk store second: a crash in between is detected and
	// trimmed on the next LoadState.
	if err := p.index.Save(filepath.Join(p.opts.DataDir, indexFile)); err != nil {
		return 0, err
	}
	if err := p.chunks.Save(filepath.Join(p.opts.DataDir, chunksFile)); err != nil {
		return 0, err
	}
	p.log.Info("document ingested", "path", path, "chunks", len(records), "total", p.chunks.Len())
	return len(records), nil
}

// Query embeds the question, searches the index, and joins the surviving
// chunk texts with newlines in ascending distance order. Positions missing
// from the chunk store are logged and skipped, never fatal. An empty index
// yields an empty context.
func (p *Pipeline) Query(ctx context.Context, text string, k int) (string, error) {
	if k <= 0 {
		k = p.opts.TopK
	}
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return "", err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	hits := p.index.Search(vec, k)
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		rec, err := p.chunks.Get(h.Position)
		if err != nil {
			p.log.Warn("search hit has no chunk record, skipping", "position", h.Position)
			continue
		}
		parts = append(parts, rec.Text)
	}
	return strings.Join(parts, "\n"), nil
}

// Respond answers a question conditioned on the guardrails block and the
// retrieved context. When retrieval yields nothing, the canned reply is
// returned and the completion provider is never called.
func (p *Pipeline) Respond(ctx context.Context, question string) (string, error) {
	guard, err := p.Guardrails()
	if err != nil {
		return "", err
	}
	retrieved, err := p.Query(ctx, question, p.opts.TopK)
	if err != nil {
		return "", err
	}
	if retrieved == "" {
		return NoContextReply, nil
	}
	system := guard + "\n" + assistantPersona
	user := fmt.Sprintf(
		"Follow these instructions when answering:\n%s\n\nUse the following context to answer the question.\n\nContext:\n%s\n\nQuestion:\n%s",
		guard, retrieved, question)
	return p.completer.Complete(ctx, system, user)
}

// SetGuardrails overwrites the persisted guardrails block.
func (p *Pipeline) SetGuardrails(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guard.Save(text)
}

// Guardrails returns the current guardrails block, empty if never set.
func (p *Pipeline) Guardrails() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.guard.Load()
}

// Size reports the number of indexed chunks.
func (p *Pipeline) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chunks.Len()
}
