package chunkstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"ragchat/internal/domain"
)

// Store is the ordered, append-only list of chunk records. Record i
// corresponds to position i in the vector index. Not goroutine-safe; the
// retrieval pipeline serializes access.
type Store struct {
	records []domain.Record
}

func NewStore() *Store { return &Store{} }

// Append adds a record at the next position.
func (s *Store) Append(rec domain.Record) {
	s.records = append(s.records, rec)
}

// Get returns the record at position pos, or ErrNotFound when pos is out of
// range. Callers treat a miss as non-fatal and skip the result.
func (s *Store) Get(pos int) (domain.Record, error) {
	if pos < 0 || pos >= len(s.records) {
		return domain.Record{}, fmt.Errorf("%w: position %d of %d", domain.ErrNotFound, pos, len(s.records))
	}
	return s.records[pos], nil
}

// Len returns the number of stored records.
func (s *Store) Len() int { return len(s.records) }

// Save writes the records as a JSON array keyed positionally, via a temp file
// and rename.
func (s *Store) Save(path string) error {
	records := s.records
	if records == nil {
		records = []domain.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	return nil
}

// Load replaces the store contents with the JSON array at path. A missing
// file leaves the store empty.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	var records []domain.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	s.records = records
	return nil
}
