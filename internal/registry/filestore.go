package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/attune/internal/models"
)

const snapshotVersion = 1

// snapshot is the on-disk document: target id to record, plus the
// registration order.
type snapshot struct {
	Version int                      `json:"version"`
	Order   []string                 `json:"order"`
	Targets map[string]models.Target `json:"targets"`
}

// FileStore keeps the registry as one JSON document rewritten atomically.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore writing to path. Parent directories are
// created on demand.
func NewFileStore(path string) (*FileStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("registry: resolve path: %w", err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return nil, fmt.Errorf("registry: snapshot path is a directory: %s", abs)
	}
	return &FileStore{path: abs}, nil
}

// Path returns the snapshot location.
func (f *FileStore) Path() string { return f.path }

// Load reads the snapshot. A missing file is an empty registry.
func (f *FileStore) Load(_ context.Context) ([]models.Target, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: read snapshot: %w", err)
	}
	var doc snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry: decode snapshot: %w", err)
	}
	out := make([]models.Target, 0, len(doc.Order))
	for _, id := range doc.Order {
		t, ok := doc.Targets[id]
		if !ok {
			return nil, fmt.Errorf("registry: snapshot order references missing target %s", id)
		}
		out = append(out, t)
	}
	return out, nil
}

// Save writes the snapshot: tmp file, fsync, rename.
func (f *FileStore) Save(_ context.Context, targets []models.Target) error {
	doc := snapshot{
		Version: snapshotVersion,
		Order:   make([]string, 0, len(targets)),
		Targets: make(map[string]models.Target, len(targets)),
	}
	for _, t := range targets {
		doc.Order = append(doc.Order, t.ID)
		doc.Targets[t.ID] = t
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".attune-tmp-*")
	if err != nil {
		return fmt.Errorf("registry: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("registry: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("registry: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("registry: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("registry: rename: %w", err)
	}
	success = true
	return nil
}

// Close is a no-op; every Save is self-contained.
func (f *FileStore) Close() error { return nil }
