package repository

import (
	"context"

	"github.com/m-mizutani/recall/pkg/model"
)

// Repository is the append-only store of memory entries
type Repository interface {
	// AppendMemory adds an entry at the end of the log. Returns
	// model.ErrDuplicateMemory if an entry with the same ID exists.
	AppendMemory(ctx context.Context, entry *model.MemoryEntry) error

	// ListMemories returns all entries in insertion order
	ListMemories(ctx context.Context) ([]*model.MemoryEntry, error)

	// CountMemories returns the number of stored entries
	CountMemories(ctx context.Context) (int, error)
}
