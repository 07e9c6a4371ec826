// Package journal keeps a diagnostic record of every console action outcome.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one action outcome.
type Entry struct {
	Action    string    `json:"action"`
	Account   string    `json:"account,omitempty"`
	Status    string    `json:"status"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message"`
	TxHash    string    `json:"txHash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Store abstracts journal persistence.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
}

// MemoryStore keeps the last Limit entries in memory.
type MemoryStore struct {
	Limit int

	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{Limit: limit}
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if m.Limit > 0 && len(m.entries) > m.Limit {
		m.entries = append([]Entry(nil), m.entries[len(m.entries)-m.Limit:]...)
	}
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, n int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.entries, n), nil
}

// FileStore persists entries as a JSON array on disk. Suitable for local use.
type FileStore struct {
	path  string
	limit int

	mu      sync.Mutex
	entries []Entry
}

func NewFileStore(path string, limit int) (*FileStore, error) {
	fs := &FileStore{path: path, limit: limit}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.entries)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileStore) Append(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	if f.limit > 0 && len(f.entries) > f.limit {
		f.entries = append([]Entry(nil), f.entries[len(f.entries)-f.limit:]...)
	}
	return f.persist()
}

func (f *FileStore) Recent(_ context.Context, n int) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return newestFirst(f.entries, n), nil
}

func newestFirst(entries []Entry, n int) []Entry {
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]Entry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}
