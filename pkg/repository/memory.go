package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
)

// Memory is an in-process Repository. Contents are lost when the process exits.
type Memory struct {
	mu      sync.RWMutex
	entries []*model.MemoryEntry
	ids     map[model.MemoryID]struct{}
}

// NewMemory creates an empty in-process repository
func NewMemory() *Memory {
	return &Memory{
		ids: make(map[model.MemoryID]struct{}),
	}
}

func (r *Memory) AppendMemory(ctx context.Context, entry *model.MemoryEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[entry.ID]; ok {
		return goerr.Wrap(model.ErrDuplicateMemory, "failed to append memory", goerr.V("id", entry.ID))
	}

	copied := *entry
	r.entries = append(r.entries, &copied)
	r.ids[entry.ID] = struct{}{}
	return nil
}

func (r *Memory) ListMemories(ctx context.Context) ([]*model.MemoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*model.MemoryEntry, len(r.entries))
	for i, e := range r.entries {
		copied := *e
		entries[i] = &copied
	}
	return entries, nil
}

func (r *Memory) CountMemories(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}
