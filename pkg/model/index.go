package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidIndex = goerr.New("invalid index")

// Index is an immutable TF-IDF snapshot built from the memory entries. It is
// rebuilt from scratch rather than updated; vectors from different snapshots
// are not comparable because the vocabulary may differ.
type Index struct {
	CreatedAt  time.Time          `json:"created_at"`
	MinDocFreq int                `json:"min_doc_freq"`
	Vocabulary []string           `json:"vocabulary"`
	IDF        []float64          `json:"idf"`
	Documents  []*IndexedDocument `json:"documents"`
}

// IndexedDocument holds the vector of a single entry. ID is the position of
// the entry in insertion order.
type IndexedDocument struct {
	ID        int       `json:"id"`
	EntryID   MemoryID  `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Vector    []float64 `json:"vector"`
}

// Hit is a single retrieval result
type Hit struct {
	Score     float64   `json:"score"`
	ID        int       `json:"id"`
	EntryID   MemoryID  `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
}

func (x *Index) DocCount() int {
	if x == nil {
		return 0
	}
	return len(x.Documents)
}

func (x *Index) VocabSize() int {
	if x == nil {
		return 0
	}
	return len(x.Vocabulary)
}

// Validate checks that every vector shares the vocabulary dimension. Snapshots
// read back from storage go through this before use.
func (x *Index) Validate() error {
	if x == nil {
		return goerr.Wrap(ErrInvalidIndex, "index is nil")
	}
	dim := len(x.Vocabulary)
	if len(x.IDF) != dim {
		return goerr.Wrap(ErrInvalidIndex, "idf length mismatch",
			goerr.V("vocabulary", dim),
			goerr.V("idf", len(x.IDF)))
	}
	for i, doc := range x.Documents {
		if doc == nil {
			return goerr.Wrap(ErrInvalidIndex, "document is nil", goerr.V("position", i))
		}
		if len(doc.Vector) != dim {
			return goerr.Wrap(ErrInvalidIndex, "vector length mismatch",
				goerr.V("position", i),
				goerr.V("vocabulary", dim),
				goerr.V("vector", len(doc.Vector)))
		}
	}
	return nil
}
