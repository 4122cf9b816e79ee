package search

import (
	"errors"
	"fmt"
)

var (
	// ErrVectorization is the parent of every failure that prevents a corpus
	// from being turned into vectors.
	ErrVectorization = errors.New("vectorization failed")

	ErrEmptyCorpus     = fmt.Errorf("%w: corpus has no documents", ErrVectorization)
	ErrEmptyVocabulary = fmt.Errorf("%w: corpus has no terms", ErrVectorization)

	// ErrInvalidIndex is returned when the target index is outside the corpus.
	ErrInvalidIndex = errors.New("target index out of range")
)
