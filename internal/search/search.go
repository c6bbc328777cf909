// Package search ranks document chunks against a query embedding.
//
// Embeddings are produced outside the core (the client computes them when a
// document is uploaded); this package only compares vectors, so it has no
// model dependency beyond the chunk type.
package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/calimero-network/MeroSign/internal/model"
)

// Match is one ranked chunk.
type Match struct {
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Vectors must have the same dimension. A zero vector scores 0
// against everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ (%d vs %d): %w", len(a), len(b), model.ErrInvalidInput)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// RankChunks scores every chunk against the query embedding and returns the
// top k matches, best first. Chunks whose dimension does not match the query
// are skipped rather than failing the whole search; a document can carry
// chunks from more than one embedding model. k <= 0 returns all matches.
func RankChunks(query []float32, chunks []model.DocumentChunk, k int) []Match {
	matches := make([]Match, 0, len(chunks))
	for _, c := range chunks {
		score, err := CosineSimilarity(query, c.Embedding)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Text: c.Text, Start: c.Start, End: c.End, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
