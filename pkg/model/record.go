package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MemoryRecord is the loose on-disk shape of an entry. It accepts the current
// field names as well as the legacy {ts, user, assistant} layout where ts is
// epoch milliseconds.
type MemoryRecord struct {
	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Query     string     `json:"query,omitempty" yaml:"query,omitempty"`
	Response  string     `json:"response,omitempty" yaml:"response,omitempty"`

	TS        int64  `json:"ts,omitempty" yaml:"ts,omitempty"`
	User      string `json:"user,omitempty" yaml:"user,omitempty"`
	Assistant string `json:"assistant,omitempty" yaml:"assistant,omitempty"`
}

// ToEntry converts the record. A record without ID gets one derived from its
// content so that re-reading the same file yields the same IDs. fallback is
// used when the record carries no timestamp at all; it never takes part in the
// derived ID.
func (r *MemoryRecord) ToEntry(fallback time.Time) *MemoryEntry {
	entry := &MemoryEntry{
		ID:       MemoryID(r.ID),
		Query:    r.Query,
		Response: r.Response,
	}
	if entry.Query == "" {
		entry.Query = r.User
	}
	if entry.Response == "" {
		entry.Response = r.Assistant
	}

	seed := fmt.Sprintf("%s\x00%s", entry.Query, entry.Response)
	switch {
	case r.Timestamp != nil && !r.Timestamp.IsZero():
		entry.Timestamp = *r.Timestamp
		seed = fmt.Sprintf("%d\x00%s", entry.Timestamp.UnixNano(), seed)
	case r.TS != 0:
		entry.Timestamp = time.UnixMilli(r.TS)
		seed = fmt.Sprintf("%d\x00%s", entry.Timestamp.UnixNano(), seed)
	default:
		entry.Timestamp = fallback
	}

	if entry.ID == "" {
		entry.ID = MemoryID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String())
	}

	return entry
}
