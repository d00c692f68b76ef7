package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrMemoryNotFound   = goerr.New("memory not found")
	ErrDuplicateMemory  = goerr.New("memory already exists")
	ErrInvalidMemory    = goerr.New("invalid memory entry")
	ErrRejectedByPolicy = goerr.New("memory rejected by policy")
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// MemoryEntry is one past exchange. Entries are append-only: once written they
// are never updated or deleted.
type MemoryEntry struct {
	ID        MemoryID  `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Query     string    `json:"query" yaml:"query"`
	Response  string    `json:"response" yaml:"response"`
}

// Text returns the document text indexed for the entry
func (m *MemoryEntry) Text() string {
	if m == nil {
		return ""
	}
	return m.Query + "\n\n" + m.Response
}

// Validate checks the entry can be stored
func (m *MemoryEntry) Validate() error {
	if m == nil {
		return goerr.Wrap(ErrInvalidMemory, "entry is nil")
	}
	if m.ID == "" {
		return goerr.Wrap(ErrInvalidMemory, "memory ID is empty")
	}
	if m.Timestamp.IsZero() {
		return goerr.Wrap(ErrInvalidMemory, "timestamp is empty", goerr.V("id", m.ID))
	}
	return nil
}
