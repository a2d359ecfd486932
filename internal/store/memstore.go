package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
)

// MemStore is an in-memory Store used by tests and dry runs. It mirrors the
// directory adapter's key semantics without touching the filesystem.
type MemStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string][]byte)}
}

// ReadStructured decodes and validates the document at key.
func (s *MemStore) ReadStructured(_ context.Context, key string, out any) error {
	s.mu.RLock()
	data, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return perrors.NotFound("document", key)
	}
	return Decode(key, data, out)
}

// WriteStructured stores the encoded document at key.
func (s *MemStore) WriteStructured(_ context.Context, key string, v any) error {
	data, err := Encode(key, v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[key] = data
	s.mu.Unlock()
	return nil
}

// ReadText returns the raw text document at key.
func (s *MemStore) ReadText(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	data, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return "", perrors.NotFound("document", key)
	}
	return string(data), nil
}

// WriteText stores a raw text document at key.
func (s *MemStore) WriteText(_ context.Context, key, content string) error {
	s.mu.Lock()
	s.docs[key] = []byte(content)
	s.mu.Unlock()
	return nil
}

// Exists reports whether a document is stored at key.
func (s *MemStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	_, ok := s.docs[key]
	s.mu.RUnlock()
	return ok, nil
}

// Delete removes the document at key. Absent keys are not an error.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	return nil
}

// List returns all keys under prefix, sorted.
func (s *MemStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirectories returns the immediate child directory names under prefix,
// sorted. Directories exist implicitly through the keys stored beneath them.
func (s *MemStore) ListDirectories(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := prefix
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}

	seen := make(map[string]bool)
	for k := range s.docs {
		if !strings.HasPrefix(k, p) {
			continue
		}
		rest := strings.TrimPrefix(k, p)
		if i := strings.Index(rest, "/"); i > 0 {
			seen[rest[:i]] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
