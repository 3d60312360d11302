package rag

import (
	"context"
	"math"
	"sort"
)

// DefaultTopK is how many passages the search returns when the caller does
// not ask for a specific count.
const DefaultTopK = 5

// Filters restricts the scan to documents whose source matches every
// non-empty field. Filters apply during the scan, so top-k is filled from
// the filtered set rather than trimmed after the fact.
type Filters struct {
	Class    string
	Subject  string
	Language string
}

func (f Filters) match(src Source) bool {
	if f.Class != "" && f.Class != src.Class {
		return false
	}
	if f.Subject != "" && f.Subject != src.Subject {
		return false
	}
	if f.Language != "" && f.Language != src.Language {
		return false
	}
	return true
}

// Match is one search hit.
type Match struct {
	Document   Document
	Similarity float64
}

// Search runs a linear cosine-similarity scan over the corpus and returns
// the top-k matches ordered by descending similarity. Equal similarities
// are broken by ascending document id, so results are deterministic.
func Search(ctx context.Context, store *Store, query []float32, filters Filters, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	var matches []Match
	err := store.ForEach(ctx, func(doc Document) error {
		if !filters.match(doc.Source) {
			return nil
		}
		matches = append(matches, Match{
			Document:   doc,
			Similarity: cosineSimilarity(query, doc.Embedding),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Document.ID < matches[j].Document.ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
