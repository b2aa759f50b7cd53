// Package vector provides pluggable document stores with embedding
// similarity search.
package vector

import (
	"context"
	"errors"
	"math"

	"github.com/utakata/mnemosyne/pkg/types"
)

// ErrNotFound is returned when a document ID does not exist.
var ErrNotFound = errors.New("vector: document not found")

// Result is a retrieved document with its similarity score in (0, 1],
// higher meaning closer.
type Result struct {
	Document types.Document
	Score    float64
}

// Store is a document store searchable by embedding similarity.
// Metadata filters match documents whose metadata contains every given
// key/value pair.
type Store interface {
	// AddDocuments stores the documents, embedding their content, and
	// returns the assigned IDs. Documents without an ID get a generated
	// one.
	AddDocuments(ctx context.Context, docs []types.Document) ([]string, error)

	// Search returns up to k documents most similar to the query.
	Search(ctx context.Context, query string, k int, filters map[string]string) ([]Result, error)

	// UpdateDocument replaces the content and metadata of an existing
	// document, re-embedding the content. Returns ErrNotFound for
	// unknown IDs.
	UpdateDocument(ctx context.Context, id string, doc types.Document) error

	// DeleteDocuments removes the given IDs. Unknown IDs are ignored.
	DeleteDocuments(ctx context.Context, ids []string) error

	// DocumentsByIDs fetches documents by ID, skipping unknown ones.
	DocumentsByIDs(ctx context.Context, ids []string) ([]types.Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	Close() error
}

// cosineDistance returns 1 - cosine similarity of a and b. Zero vectors
// and mismatched lengths yield the maximum distance of 1.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// distanceScore converts a distance into a bounded similarity score.
func distanceScore(distance float64) float64 {
	return 1 / (1 + distance)
}

// matchesFilters reports whether the document's metadata contains every
// filter pair.
func matchesFilters(doc types.Document, filters map[string]string) bool {
	for k, v := range filters {
		if doc.MetaString(k) != v {
			return false
		}
	}
	return true
}
