// Package vectorstore is the similarity index used to resolve domain terms and
// locate tables. Vectors are expected to be unit length so that inner product
// equals cosine similarity.
package vectorstore

import (
	"cmp"
	"context"
	"slices"
)

// Collections searched by the pipeline.
const (
	CollectionTerms  = "terms"
	CollectionTables = "tables"
)

// Document is one indexed entity. Name is what a match resolves to: the
// canonical term or the table name.
type Document struct {
	ID          string
	Name        string
	Description string
	Vector      []float64
}

// Match is a search hit. Similarity is the inner product of the query vector
// and the document vector, so higher is closer.
type Match struct {
	ID          string
	Name        string
	Description string
	Similarity  float64
}

// Store indexes and searches documents by vector similarity.
type Store interface {
	Upsert(ctx context.Context, collection string, docs []Document) error
	Search(ctx context.Context, collection string, vector []float64, topK int) ([]Match, error)
}

// rank orders matches by similarity descending, then name and id ascending.
func rank(matches []Match, topK int) []Match {
	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
