package guardrails

import (
	"errors"
	"os"
)

// Store persists the operator-supplied guardrails instruction block as a
// single plain-text file. Last write wins; there is no versioning.
type Store struct {
	path string
}

func NewStore(path string) *Store { return &Store{path: path} }

// Save overwrites the guardrails file synchronously.
func (s *Store) Save(text string) error {
	return os.WriteFile(s.path, []byte(text), 0o644)
}

// Load returns the guardrails text, or the empty string when no file exists
// yet.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
