package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
)

// File stores entries as a single JSON array. Older files using the
// {ts, user, assistant} layout are read transparently and rewritten in the
// current layout on the next append.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a repository backed by the JSON file at path. The file is
// created on first append.
func NewFile(path string) *File {
	return &File{path: path}
}

func (r *File) AppendMemory(ctx context.Context, entry *model.MemoryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.ID == entry.ID {
			return goerr.Wrap(model.ErrDuplicateMemory, "failed to append memory", goerr.V("id", entry.ID))
		}
	}

	copied := *entry
	entries = append(entries, &copied)
	return r.save(entries)
}

func (r *File) ListMemories(ctx context.Context) ([]*model.MemoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *File) CountMemories(ctx context.Context) (int, error) {
	entries, err := r.ListMemories(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (r *File) load() ([]*model.MemoryEntry, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read memory file", goerr.V("path", r.path))
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []*model.MemoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, goerr.Wrap(err, "failed to parse memory file", goerr.V("path", r.path))
	}

	var fallback time.Time
	if info, err := os.Stat(r.path); err == nil {
		fallback = info.ModTime()
	}

	entries := make([]*model.MemoryEntry, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		entries = append(entries, rec.ToEntry(fallback))
	}
	return entries, nil
}

// save writes to a temporary file in the same directory and renames it over
// the target so readers never observe a partial file.
func (r *File) save(entries []*model.MemoryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal memories")
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create memory directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary file", goerr.V("dir", dir))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write memory file", goerr.V("path", tmp.Name()))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close memory file", goerr.V("path", tmp.Name()))
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return goerr.Wrap(err, "failed to replace memory file", goerr.V("path", r.path))
	}

	return nil
}
