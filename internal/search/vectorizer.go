package search

import (
	"math"
)

// Matrix holds one vector per document, all sharing one vocabulary
type Matrix [][]float64

// Rows returns the number of document vectors
func (m Matrix) Rows() int {
	return len(m)
}

// Row returns the vector of document i
func (m Matrix) Row(i int) []float64 {
	return m[i]
}

// Vectorizer turns a corpus into a matrix of document vectors
type Vectorizer interface {
	Fit(docs []string) error
	Transform(doc string) []float64
	FitTransform(docs []string) (Matrix, error)
}

// TFIDFVectorizer implements Term Frequency - Inverse Document Frequency
// with raw counts, smoothed idf and L2-normalised rows.
type TFIDFVectorizer struct {
	Vocabulary map[string]int
	IDF        map[string]float64
}

func NewTFIDFVectorizer() *TFIDFVectorizer {
	return &TFIDFVectorizer{
		Vocabulary: make(map[string]int),
		IDF:        make(map[string]float64),
	}
}

// Fit analyzes the corpus to build vocabulary and IDF stats.
// Any previous state is discarded.
func (v *TFIDFVectorizer) Fit(docs []string) error {
	v.Vocabulary = make(map[string]int)
	v.IDF = make(map[string]float64)

	if len(docs) == 0 {
		return ErrEmptyCorpus
	}

	docCount := float64(len(docs))
	wordDocCounts := make(map[string]int)

	// 1. Build Vocabulary and count document occurrences
	for _, doc := range docs {
		tokens := Tokenize(doc)
		seenInDoc := make(map[string]bool)
		for _, token := range tokens {
			if !seenInDoc[token] {
				wordDocCounts[token]++
				seenInDoc[token] = true
			}
			if _, exists := v.Vocabulary[token]; !exists {
				v.Vocabulary[token] = len(v.Vocabulary)
			}
		}
	}

	if len(v.Vocabulary) == 0 {
		return ErrEmptyVocabulary
	}

	// 2. Calculate IDF
	for word, count := range wordDocCounts {
		// idf = ln((1 + N) / (1 + df)) + 1
		v.IDF[word] = math.Log((1+docCount)/(1+float64(count))) + 1
	}

	return nil
}

// Transform converts a document to a unit-length vector over the learned
// vocabulary. Terms outside the vocabulary are ignored; a document with no
// known terms yields the zero vector.
func (v *TFIDFVectorizer) Transform(doc string) []float64 {
	vector := make([]float64, len(v.Vocabulary))

	tf := make(map[string]float64)
	for _, token := range Tokenize(doc) {
		tf[token]++
	}

	for token, count := range tf {
		if idx, exists := v.Vocabulary[token]; exists {
			vector[idx] = count * v.IDF[token]
		}
	}

	normalizeL2(vector)
	return vector
}

// FitTransform fits the corpus and returns one row per document, in order.
func (v *TFIDFVectorizer) FitTransform(docs []string) (Matrix, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	m := make(Matrix, len(docs))
	for i, doc := range docs {
		m[i] = v.Transform(doc)
	}
	return m, nil
}

// normalizeL2 scales x in place to unit Euclidean length.
// The zero vector is left unchanged.
func normalizeL2(x []float64) {
	n := norm(x)
	if n == 0 {
		return
	}
	for i := range x {
		x[i] /= n
	}
}

func norm(x []float64) float64 {
	var sum float64
	for _, val := range x {
		sum += val * val
	}
	return math.Sqrt(sum)
}
