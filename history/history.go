// Package history keeps the list of past predictions in a JSON file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/crycare/cry-pipeline/orchestrator"
)

const fileName = "history.json"

// ErrNotFound is returned when deleting an unknown entry.
var ErrNotFound = errors.New("history entry not found")

// Entry is one recorded prediction.
type Entry struct {
	ID          string                  `json:"id"`
	Timestamp   time.Time               `json:"timestamp"`
	Filename    string                  `json:"filename"`
	Predictions orchestrator.Prediction `json:"predictions"`
}

// Store reads and rewrites the history file. Writers in this process are
// serialised by a mutex and across processes by a lock file.
type Store struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

// Open prepares dir/history.json, creating an empty list if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history dir: %w", err)
	}
	path := filepath.Join(dir, fileName)
	s := &Store{
		path: path,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
	err := s.locked(func() error {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return writeJSON(path, []Entry{})
		} else if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Path is the history file location.
func (s *Store) Path() string { return s.path }

func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock history: %w", err)
	}
	defer s.lock.Unlock()
	return fn()
}

// List returns all entries, oldest first.
func (s *Store) List() ([]Entry, error) {
	var out []Entry
	err := s.locked(func() error {
		var err error
		out, err = s.read()
		return err
	})
	return out, err
}

// Append records a prediction for filename and returns the stored entry.
func (s *Store) Append(filename string, p orchestrator.Prediction) (Entry, error) {
	ts := s.now().UTC()
	e := Entry{
		ID:          ts.Format(time.RFC3339Nano) + "_" + filename,
		Timestamp:   ts,
		Filename:    filename,
		Predictions: p,
	}
	err := s.locked(func() error {
		entries, err := s.read()
		if err != nil {
			return err
		}
		return writeJSON(s.path, append(entries, e))
	})
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Delete removes the entry with id.
func (s *Store) Delete(id string) error {
	return s.locked(func() error {
		entries, err := s.read()
		if err != nil {
			return err
		}
		kept := entries[:0]
		for _, e := range entries {
			if e.ID != id {
				kept = append(kept, e)
			}
		}
		if len(kept) == len(entries) {
			return ErrNotFound
		}
		return writeJSON(s.path, kept)
	})
}

// DeleteAll empties the history.
func (s *Store) DeleteAll() error {
	return s.locked(func() error {
		return writeJSON(s.path, []Entry{})
	})
}

func (s *Store) read() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	entries := []Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(s.path), err)
	}
	return entries, nil
}

// writeJSON replaces path atomically with the indented encoding of v.
func writeJSON(path string, v any) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
