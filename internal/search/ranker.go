package search

import (
	"fmt"
	"math"
	"sort"
)

// DefaultTopK is the number of candidates kept per query
const DefaultTopK = 5

// Candidate is a segment scored against the target
type Candidate struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Ranker scores a target row against every other row of a matrix
type Ranker struct {
	TopK int
}

func NewRanker(topK int) *Ranker {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Ranker{TopK: topK}
}

// Rank returns the TopK candidates most similar to row target, best first.
// Candidates whose similarity is undefined (zero vector on either side) or
// not strictly positive are dropped. Equal scores keep ascending index order.
func (r *Ranker) Rank(m Matrix, target int) ([]Candidate, error) {
	if target < 0 || target >= m.Rows() {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, target, m.Rows())
	}

	targetVector := m.Row(target)
	results := make([]Candidate, 0)

	for idx := 0; idx < m.Rows(); idx++ {
		if idx == target {
			continue
		}
		score, ok := CosineSimilarity(targetVector, m.Row(idx))
		if !ok || score <= 0 {
			continue
		}
		results = append(results, Candidate{Index: idx, Score: score})
	}

	// Sort by descending score, ties by ascending index
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})

	if len(results) > r.TopK {
		return results[:r.TopK], nil
	}
	return results, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// ok is false when the similarity is undefined: mismatched lengths or a
// zero-norm vector on either side.
func CosineSimilarity(a, b []float64) (score float64, ok bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
