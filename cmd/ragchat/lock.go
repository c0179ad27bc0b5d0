package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// acquireDataLock takes an exclusive file lock on the data directory so the
// serve and ingest commands cannot both write the persisted artifacts.
func acquireDataLock(dataDir string) (func(), error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(dataDir, ".lock")
	l := flock.New(lockPath)
	deadline := time.Now().Add(5 * time.Second)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return nil, fmt.Errorf("cannot acquire data lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("another ragchat process is using %s (lock: %s)", dataDir, lockPath)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
