package tfidf

import (
	"math"
	"time"

	"github.com/m-mizutani/recall/pkg/model"
)

// DefaultMinDocFreq keeps every term that appears in at least one document
const DefaultMinDocFreq = 1

type buildConfig struct {
	minDocFreq int
	now        func() time.Time
}

// BuildOption is a functional option for Build
type BuildOption func(*buildConfig)

// WithMinDocFreq drops terms found in fewer than n documents. Values below 1
// are treated as 1.
func WithMinDocFreq(n int) BuildOption {
	return func(c *buildConfig) {
		c.minDocFreq = n
	}
}

// WithNow overrides the clock used for Index.CreatedAt
func WithNow(now func() time.Time) BuildOption {
	return func(c *buildConfig) {
		c.now = now
	}
}

// Build computes a TF-IDF snapshot from entries in the given order. The
// vocabulary keeps the order in which terms first appear, and
// idf(t) = ln((N+1)/(df(t)+1)) + 1. An empty input gives an empty index.
func Build(entries []*model.MemoryEntry, opts ...BuildOption) *model.Index {
	cfg := buildConfig{
		minDocFreq: DefaultMinDocFreq,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.minDocFreq < 1 {
		cfg.minDocFreq = 1
	}

	docTokens := make([][]string, len(entries))
	docFreq := make(map[string]int)
	var terms []string

	for i, entry := range entries {
		tokens := Tokenize(entry.Text())
		docTokens[i] = tokens

		seen := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			if _, ok := docFreq[t]; !ok {
				terms = append(terms, t)
			}
			docFreq[t]++
		}
	}

	vocab := make([]string, 0, len(terms))
	for _, t := range terms {
		if docFreq[t] >= cfg.minDocFreq {
			vocab = append(vocab, t)
		}
	}
	position := make(map[string]int, len(vocab))
	for i, t := range vocab {
		position[t] = i
	}

	n := float64(len(entries))
	idf := make([]float64, len(vocab))
	for i, t := range vocab {
		idf[i] = math.Log((n+1)/(float64(docFreq[t])+1)) + 1
	}

	docs := make([]*model.IndexedDocument, len(entries))
	for i, entry := range entries {
		doc := &model.IndexedDocument{
			ID:     i,
			Vector: weigh(docTokens[i], position, idf),
		}
		if entry != nil {
			doc.EntryID = entry.ID
			doc.Timestamp = entry.Timestamp
			doc.Query = entry.Query
			doc.Response = entry.Response
		}
		docs[i] = doc
	}

	return &model.Index{
		CreatedAt:  cfg.now(),
		MinDocFreq: cfg.minDocFreq,
		Vocabulary: vocab,
		IDF:        idf,
		Documents:  docs,
	}
}

// weigh turns tokens into an L2-normalized tf*idf vector over the vocabulary.
// Tokens outside the vocabulary are ignored.
func weigh(tokens []string, position map[string]int, idf []float64) []float64 {
	vec := make([]float64, len(idf))
	for _, t := range tokens {
		if i, ok := position[t]; ok {
			vec[i]++
		}
	}
	for i := range vec {
		vec[i] *= idf[i]
	}
	normalize(vec)
	return vec
}
