// Package jsonfile is the flat-file state backend: one JSON document per
// namespace and account under a base directory. It trades the database's
// concurrency guarantees for state that can be inspected and edited with any
// text editor.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// Store implements driven.StateStore on the filesystem. Writes are atomic
// renames, so a crash mid-write never leaves a truncated document behind.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created on first
// write, not here.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(namespace, account string) string {
	// Account keys are email addresses; escape them into safe filenames.
	return filepath.Join(s.dir, namespace, url.PathEscape(account)+".json")
}

// ReadJSON loads the document for (namespace, account) into v. The boolean
// reports whether the document existed.
func (s *Store) ReadJSON(_ context.Context, namespace, account string, v any) (bool, error) {
	raw, err := os.ReadFile(s.path(namespace, account))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read state %s/%s: %w", namespace, account, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode state %s/%s: %w", namespace, account, err)
	}
	return true, nil
}

// WriteJSON stores v as the document for (namespace, account), replacing any
// previous content atomically.
func (s *Store) WriteJSON(_ context.Context, namespace, account string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state %s/%s: %w", namespace, account, err)
	}
	path := s.path(namespace, account)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir for %s: %w", namespace, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("write state %s/%s: %w", namespace, account, err)
	}
	return nil
}

// Delete removes the document for (namespace, account). A missing document
// is not an error.
func (s *Store) Delete(_ context.Context, namespace, account string) error {
	err := os.Remove(s.path(namespace, account))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete state %s/%s: %w", namespace, account, err)
	}
	return nil
}
