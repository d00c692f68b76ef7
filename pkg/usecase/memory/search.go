package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/tfidf"
)

// Retrieve returns at most k entries relevant to query, best first
func (u *UseCase) Retrieve(ctx context.Context, query string, k int) ([]*model.Hit, error) {
	idx, err := u.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return tfidf.Retrieve(idx, query, k), nil
}

// Stats describes the current snapshot
type Stats struct {
	Documents  int       `json:"documents"`
	Vocabulary int       `json:"vocabulary"`
	MinDocFreq int       `json:"min_doc_freq"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u *UseCase) Stats(ctx context.Context) (*Stats, error) {
	idx, err := u.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Documents:  idx.DocCount(),
		Vocabulary: idx.VocabSize(),
		MinDocFreq: idx.MinDocFreq,
		CreatedAt:  idx.CreatedAt,
	}, nil
}
