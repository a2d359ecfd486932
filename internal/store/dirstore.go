package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
)

// DirStore persists documents as files under a root directory. Structured
// documents are JSON files; text documents are stored verbatim. Writes are
// atomic (temp file + rename) so a crashed writer never leaves a partial
// document behind.
type DirStore struct {
	root   string
	logger zerolog.Logger
}

// NewDirStore creates a directory-backed store rooted at root, creating the
// directory if needed.
func NewDirStore(root string, logger zerolog.Logger) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating plan directory %s: %w", root, err)
	}
	return &DirStore{
		root:   root,
		logger: logger.With().Str("component", "store.dir").Logger(),
	}, nil
}

// Root returns the root directory of the store.
func (s *DirStore) Root() string { return s.root }

func (s *DirStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("key %q escapes the plan directory: %w", key, perrors.ErrInvalidInput)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *DirStore) read(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perrors.NotFound("document", key)
		}
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (s *DirStore) write(key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("committing %s: %w", key, err)
	}
	return nil
}

// ReadStructured decodes and validates the JSON document at key.
func (s *DirStore) ReadStructured(_ context.Context, key string, out any) error {
	data, err := s.read(key)
	if err != nil {
		return err
	}
	return Decode(key, data, out)
}

// WriteStructured atomically writes the JSON document at key.
func (s *DirStore) WriteStructured(_ context.Context, key string, v any) error {
	data, err := Encode(key, v)
	if err != nil {
		return err
	}
	return s.write(key, data)
}

// ReadText returns the raw text document at key.
func (s *DirStore) ReadText(_ context.Context, key string) (string, error) {
	data, err := s.read(key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteText atomically writes a raw text document at key.
func (s *DirStore) WriteText(_ context.Context, key, content string) error {
	return s.write(key, []byte(content))
}

// Exists reports whether a document is stored at key.
func (s *DirStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the document at key. Absent keys are not an error.
func (s *DirStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// List returns all document keys under prefix, sorted.
func (s *DirStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirectories returns the immediate child directory names under prefix,
// sorted. An absent prefix directory yields an empty list.
func (s *DirStore) ListDirectories(_ context.Context, prefix string) ([]string, error) {
	path, err := s.path(prefix)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing directories under %s: %w", prefix, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
