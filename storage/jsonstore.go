package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

// ErrCorruptDocument marks a document that exists but fails to parse. Readers
// treat it as "stale - keep previous" instead of crashing.
var ErrCorruptDocument = errors.New("corrupt document")

// writeJSONAtomic writes v to path via a temp file and rename, so a concurrent
// reader never observes a half-written document.
func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// QueueStore persists QueueState as a JSON document.
type QueueStore struct {
	mu   sync.Mutex
	path string
}

func NewQueueStore(path string) *QueueStore {
	return &QueueStore{path: path}
}

// Load reads the queue snapshot. A missing file yields a fresh empty state; a
// file that no longer parses is a corruption error, never a silent reset.
func (s *QueueStore) Load() (*models.QueueState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.QueueState{}, nil
		}
		return nil, fmt.Errorf("read queue state: %w", err)
	}

	var state models.QueueState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, s.path, err)
	}
	return &state, nil
}

func (s *QueueStore) Save(state *models.QueueState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSONAtomic(s.path, state); err != nil {
		return fmt.Errorf("save queue state: %w", err)
	}
	return nil
}

// ResultStore persists one ResultDocument per search kind under a data dir.
type ResultStore struct {
	dir string
}

func NewResultStore(dir string) *ResultStore {
	return &ResultStore{dir: dir}
}

// Path returns the document location for a kind. Housing keeps the historical
// file name the site's display layer reads.
func (s *ResultStore) Path(kind models.SearchKind) string {
	switch kind {
	case models.KindHousing:
		return filepath.Join(s.dir, "wohnungen.json")
	default:
		return filepath.Join(s.dir, "gear.json")
	}
}

// Load reads the last published document for a kind. A missing document is
// (nil, nil): first run. A corrupt one returns ErrCorruptDocument so the
// caller can keep whatever it already has.
func (s *ResultStore) Load(kind models.SearchKind) (*models.ResultDocument, error) {
	data, err := os.ReadFile(s.Path(kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read result document: %w", err)
	}

	var doc models.ResultDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, s.Path(kind), err)
	}
	return &doc, nil
}

func (s *ResultStore) Save(kind models.SearchKind, doc *models.ResultDocument) error {
	if err := writeJSONAtomic(s.Path(kind), doc); err != nil {
		return fmt.Errorf("save result document: %w", err)
	}
	return nil
}
