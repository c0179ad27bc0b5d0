package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ragchat/internal/chunker"
	"ragchat/internal/chunkstore"
	"ragchat/internal/domain"
	"ragchat/internal/extractor"
	"ragchat/internal/vectorstore"
)

type fakeEmbedder struct {
	calls  int
	failAt int // 1-based call number that fails; 0 means never
	vecs   map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, fmt.Errorf("%w: provider unavailable", domain.ErrEmbedding)
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return []float32{float32(len(text)), 0}, nil
}

type fakeCompleter struct {
	calls  int
	system string
	user   string
	reply  string
	err    error
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestPipeline(t *testing.T, em domain.Embedder, co domain.Completer) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPipeline(
		extractor.NewFileExtractor(),
		chunker.NewTokenChunker(),
		em, co,
		Options{DataDir: dir, MaxChunkTokens: 1, TopK: 5},
		logger,
	)
	if err := p.LoadState(); err != nil {
		t.Fatalf("load state: %v", err)
	}
	return p, dir
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func persistedSizes(t *testing.T, dir string) (int, int) {
	t.Helper()
	ix := vectorstore.NewIndex()
	if err := ix.Load(filepath.Join(dir, indexFile)); err != nil {
		t.Fatalf("load index: %v", err)
	}
	cs := chunkstore.NewStore()
	if err := cs.Load(filepath.Join(dir, chunksFile)); err != nil {
		t.Fatalf("load chunks: %v", err)
	}
	return ix.Len(), cs.Len()
}

func TestIngestAlignmentInvariant(t *testing.T) {
	p, dir := newTestPipeline(t, &fakeEmbedder{}, &fakeCompleter{})
	docs := []string{"alpha beta", "gamma delta epsilon", "zeta"}
	total := 0
	for i, content := range docs {
		path := writeDoc(t, dir, fmt.Sprintf("doc%d.txt", i), content)
		n, err := p.Ingest(context.Background(), path)
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		total += n
		ixLen, csLen := persistedSizes(t, dir)
		if ixLen != csLen {
			t.Fatalf("alignment broken after ingest %d: index=%d chunks=%d", i, ixLen, csLen)
		}
		if csLen != total {
			t.Fatalf("expected %d persisted chunks, got %d", total, csLen)
		}
	}
	if p.Size() != total {
		t.Fatalf("expected in-memory size %d, got %d", total, p.Size())
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	p, dir := newTestPipeline(t, &fakeEmbedder{}, &fakeCompleter{})
	path := writeDoc(t, dir, "empty.txt", "   \n ")
	n, err := p.Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 0 || p.Size() != 0 {
		t.Fatalf("expected zero chunks, got n=%d size=%d", n, p.Size())
	}
}

func TestEmptyIndexShortCircuit(t *testing.T) {
	co := &fakeCompleter{reply: "should never be seen"}
	p, _ := newTestPipeline(t, &fakeEmbedder{}, co)

	reply, err := p.Respond(context.Background(), "anything in there?")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != NoContextReply {
		t.Fatalf("expected canned reply, got %q", reply)
	}
	if co.calls != 0 {
		t.Fatalf("completion provider must not be called on empty context, got %d calls", co.calls)
	}
}

func TestPartialFailureAtomicity(t *testing.T) {
	em := &fakeEmbedder{}
	p, dir := newTestPipeline(t, em, &fakeCompleter{})

	first := writeDoc(t, dir, "first.txt", "one two")
	if n, err := p.Ingest(context.Background(), first); err != nil || n != 2 {
		t.Fatalf("ingest: n=%d err=%v", n, err)
	}

	indexBefore, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		t.Fatal(err)
	}
	chunksBefore, err := os.ReadFile(filepath.Join(dir, chunksFile))
	if err != nil {
		t.Fatal(err)
	}

	// Fail on chunk 3 of 5 of the second document (2 calls already spent).
	em.failAt = em.calls + 3
	second := writeDoc(t, dir, "second.txt", "six ten oak elm fir")
	if _, err := p.Ingest(context.Background(), second); !errors.Is(err, domain.ErrEmbedding) {
		t.Fatalf("expected embedding error, got %v", err)
	}

	indexAfter, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		t.Fatal(err)
	}
	chunksAfter, err := os.ReadFile(filepath.Join(dir, chunksFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(indexBefore) != string(indexAfter) {
		t.Error("index file changed after failed ingest")
	}
	if string(chunksBefore) != string(chunksAfter) {
		t.Error("chunk store file changed after failed ingest")
	}
	if p.Size() != 2 {
		t.Fatalf("in-memory state leaked chunks from failed ingest: size=%d", p.Size())
	}
}

func TestQueryOrderingAndContextAssembly(t *testing.T) {
	em := &fakeEmbedder{vecs: map[string][]float32{
		"near":   {1, 0},
		"mid":    {3, 0},
		"far":    {10, 0},
		"where?": {0, 0},
	}}
	p, dir := newTestPipeline(t, em, &fakeCompleter{})
	path := writeDoc(t, dir, "doc.txt", "far near mid")
	if _, err := p.Ingest(context.Background(), path); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, err := p.Query(context.Background(), "where?", 3)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := "near\nmid\nfar"
	if got != want {
		t.Fatalf("expected context %q, got %q", want, got)
	}
}

func TestQueryTopKLimit(t *testing.T) {
	p, dir := newTestPipeline(t, &fakeEmbedder{}, &fakeCompleter{})
	path := writeDoc(t, dir, "doc.txt", "a bb ccc dddd eeeee ffffff")
	if _, err := p.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	got, err := p.Query(context.Background(), "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(strings.Split(got, "\n")); n != 2 {
		t.Fatalf("expected 2 context chunks, got %d", n)
	}
}

func TestOutOfRangeToleranceOnDesync(t *testing.T) {
	p, dir := newTestPipeline(t, &fakeEmbedder{}, &fakeCompleter{})
	path := writeDoc(t, dir, "doc.txt", "alpha beta")
	if _, err := p.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	// Simulate a desynced index with a vector that has no chunk record.
	// The orphan is closest to the query and must be skipped, not fatal.
	p.index.Add([]float32{0, 0})
	got, err := p.Query(context.Background(), "", 3)
	if err != nil {
		t.Fatalf("query must tolerate missing chunk records, got %v", err)
	}
	if len(strings.Split(got, "\n")) != 2 {
		t.Fatalf("expected 2 surviving chunks, got %q", got)
	}
}

func TestRespondBuildsPromptFromGuardrailsAndContext(t *testing.T) {
	co := &fakeCompleter{reply: "the answer"}
	p, dir := newTestPipeline(t, &fakeEmbedder{}, co)
	if err := p.SetGuardrails("Answer in one sentence."); err != nil {
		t.Fatal(err)
	}
	path := writeDoc(t, dir, "doc.txt", "photosynthesis converts light")
	if _, err := p.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	reply, err := p.Respond(context.Background(), "what does photosynthesis do?")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "the answer" {
		t.Fatalf("expected completer reply, got %q", reply)
	}
	if co.calls != 1 {
		t.Fatalf("expected exactly one completion call, got %d", co.calls)
	}
	if !strings.Contains(co.system, "Answer in one sentence.") {
		t.Errorf("system message missing guardrails: %q", co.system)
	}
	if !strings.Contains(co.system, assistantPersona) {
		t.Errorf("system message missing persona: %q", co.system)
	}
	if !strings.Contains(co.user, "photosynthesis") {
		t.Errorf("user message missing retrieved context: %q", co.user)
	}
	if !strings.Contains(co.user, "what does photosynthesis do?") {
		t.Errorf("user message missing question: %q", co.user)
	}
}

func TestRespondPropagatesCompletionError(t *testing.T) {
	co := &fakeCompleter{err: fmt.Errorf("%w: rate limited", domain.ErrCompletion)}
	p, dir := newTestPipeline(t, &fakeEmbedder{}, co)
	path := writeDoc(t, dir, "doc.txt", "some content")
	if _, err := p.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Respond(context.Background(), "q"); !errors.Is(err, domain.ErrCompletion) {
		t.Fatalf("expected completion error, got %v", err)
	}
}

func TestLoadStateTrimsIndexAheadOfChunks(t *testing.T) {
	dir := t.TempDir()
	ix := vectorstore.NewIndex()
	ix.Add([]float32{1})
	ix.Add([]float32{2})
	ix.Add([]float32{3})
	if err := ix.Save(filepath.Join(dir, indexFile)); err != nil {
		t.Fatal(err)
	}
	cs := chunkstore.NewStore()
	cs.Append(domain.Record{Text: "one", Embedding: []float32{1}})
	cs.Append(domain.Record{Text: "two", Embedding: []float32{2}})
	if err := cs.Save(filepath.Join(dir, chunksFile)); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPipeline(extractor.NewFileExtractor(), chunker.NewTokenChunker(), &fakeEmbedder{}, &fakeCompleter{},
		Options{DataDir: dir, MaxChunkTokens: 1, TopK: 5}, logger)
	if err := p.LoadState(); err != nil {
		t.Fatalf("load state: %v", err)
	}
	if p.index.Len() != 2 || p.chunks.Len() != 2 {
		t.Fatalf("expected trimmed state of 2/2, got index=%d chunks=%d", p.index.Len(), p.chunks.Len())
	}
}

func TestLoadStateRebuildsIndexFromChunkEmbeddings(t *testing.T) {
	dir := t.TempDir()
	cs := chunkstore.NewStore()
	cs.Append(domain.Record{Text: "one", Embedding: []float32{1, 0}})
	cs.Append(domain.Record{Text: "two", Embedding: []float32{2, 0}})
	if err := cs.Save(filepath.Join(dir, chunksFile)); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPipeline(extractor.NewFileExtractor(), chunker.NewTokenChunker(), &fakeEmbedder{}, &fakeCompleter{},
		Options{DataDir: dir, MaxChunkTokens: 1, TopK: 5}, logger)
	if err := p.LoadState(); err != nil {
		t.Fatalf("load state: %v", err)
	}
	if p.index.Len() != 2 {
		t.Fatalf("expected index rebuilt to 2 vectors, got %d", p.index.Len())
	}
}

func TestRespondSeesWholeGuardrailsDuringConcurrentWrites(t *testing.T) {
	co := &fakeCompleter{reply: "ok"}
	p, dir := newTestPipeline(t, &fakeEmbedder{}, co)
	path := writeDoc(t, dir, "doc.txt", "some content")
	if _, err := p.Ingest(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if err := p.SetGuardrails("AAAA"); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			text := "AAAA"
			if i%2 == 1 {
				text = "BBBB"
			}
			if err := p.SetGuardrails(text); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for i := 0; i < 50; i++ {
		if _, err := p.Respond(context.Background(), "q"); err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(co.system, "AAAA\n") && !strings.HasPrefix(co.system, "BBBB\n") {
			t.Fatalf("respond saw a torn guardrails value: %q", co.system)
		}
	}
	<-done
}

func TestGuardrailsRoundTripThroughPipeline(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeEmbedder{}, &fakeCompleter{})
	if err := p.SetGuardrails("Stay on topic.\nBe brief."); err != nil {
		t.Fatal(err)
	}
	got, err := p.Guardrails()
	if err != nil {
		t.Fatal(err)
	}
	if got != "Stay on topic.\nBe brief." {
		t.Fatalf("guardrails did not round-trip: %q", got)
	}
}
