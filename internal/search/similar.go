package search

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/segscope/backend/internal/segment"
)

// SimilarityResult is the outcome of one successful query
type SimilarityResult struct {
	QueryID    string      `json:"query_id"`
	Project    string      `json:"project,omitempty"`
	Target     int         `json:"target"`
	Candidates []Candidate `json:"candidates"`
	ComputedAt time.Time   `json:"computed_at"`
	// CorpusSize is the number of documents the query was computed over
	CorpusSize int `json:"corpus_size"`
}

// Clone returns a deep copy so callers cannot mutate a stored result
func (r *SimilarityResult) Clone() *SimilarityResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Candidates = append([]Candidate(nil), r.Candidates...)
	return &out
}

// FindSimilar runs one full query: corpus build, vectorization over the
// whole corpus, then ranking of every other segment against target.
// Nothing is reused across calls. On error no result is returned.
func FindSimilar(segments []segment.Segment, target, topK int) (*SimilarityResult, error) {
	if target < 0 || target >= len(segments) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, target, len(segments))
	}

	docs := BuildCorpus(segments)

	matrix, err := NewTFIDFVectorizer().FitTransform(docs)
	if err != nil {
		return nil, err
	}

	candidates, err := NewRanker(topK).Rank(matrix, target)
	if err != nil {
		return nil, err
	}

	return &SimilarityResult{
		QueryID:    uuid.NewString(),
		Target:     target,
		Candidates: candidates,
		ComputedAt: time.Now(),
		CorpusSize: len(docs),
	}, nil
}
