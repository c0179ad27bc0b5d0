package vectorstore

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"ragchat/internal/domain"
)

// Index is a flat, append-only collection of fixed-dimension vectors with
// exact nearest-neighbor search by Euclidean distance. Insertion order is
// stable and never reordered or compacted: a vector's position is the sole
// join key to the chunk store. The index itself is not goroutine-safe; the
// retrieval pipeline serializes access.
type Index struct {
	vectors [][]float32
}

func NewIndex() *Index { return &Index{} }

// Add appends a vector and returns its position (the size before insertion).
func (ix *Index) Add(vec []float32) int {
	pos := len(ix.vectors)
	ix.vectors = append(ix.vectors, vec)
	return pos
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int { return len(ix.vectors) }

// Truncate discards every vector at position n or beyond. Used to repair a
// persisted index that is longer than the chunk store.
func (ix *Index) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(ix.vectors) {
		ix.vectors = ix.vectors[:n]
	}
}

// Search returns the min(k, size) nearest vectors to query, ordered by
// ascending Euclidean distance, ties broken by lower position. An empty
// index yields an empty result.
func (ix *Index) Search(query []float32, k int) []domain.Hit {
	if k <= 0 || len(ix.vectors) == 0 {
		return nil
	}
	hits := make([]domain.Hit, len(ix.vectors))
	for i, v := range ix.vectors {
		hits[i] = domain.Hit{Position: i, Distance: euclidean(query, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Position < hits[j].Position
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// Save gob-encodes the full vector set to path, writing a temp file first and
// renaming it into place so a crash never leaves a torn index file.
func (ix *Index) Save(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	if err := gob.NewEncoder(f).Encode(ix.vectors); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	return nil
}

// Load replaces the index contents with the vector set at path. A missing
// file is not an error: it leaves the index empty.
func (ix *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	defer f.Close()
	var vectors [][]float32
	if err := gob.NewDecoder(f).Decode(&vectors); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	ix.vectors = vectors
	return nil
}

func euclidean(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
