package tfidf

import (
	"sort"

	"github.com/m-mizutani/recall/pkg/model"
)

// QueryVector projects query onto the vocabulary of idx
func QueryVector(idx *model.Index, query string) []float64 {
	if idx == nil {
		return nil
	}
	position := make(map[string]int, len(idx.Vocabulary))
	for i, t := range idx.Vocabulary {
		position[t] = i
	}
	return weigh(Tokenize(query), position, idx.IDF)
}

// Retrieve ranks the documents of idx by cosine similarity to query and
// returns at most k hits with a positive score. Equal scores keep insertion
// order. idx is only read, so a snapshot can be shared by concurrent readers.
func Retrieve(idx *model.Index, query string, k int) []*model.Hit {
	if idx.DocCount() == 0 || k <= 0 {
		return []*model.Hit{}
	}

	qvec := QueryVector(idx, query)

	hits := make([]*model.Hit, 0, len(idx.Documents))
	for _, doc := range idx.Documents {
		score := clamp(Cosine(qvec, doc.Vector))
		if score <= 0 {
			continue
		}
		hits = append(hits, &model.Hit{
			Score:     score,
			ID:        doc.ID,
			EntryID:   doc.EntryID,
			Timestamp: doc.Timestamp,
			Query:     doc.Query,
			Response:  doc.Response,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}
