package search

import (
	"strings"

	"github.com/segscope/backend/internal/segment"
)

// BuildCorpus turns every segment into one document string, index-aligned
// with the input. Tokens are joined by a single space and kept verbatim so
// the upstream tokenizer's boundaries survive; an empty segment yields "".
func BuildCorpus(segments []segment.Segment) []string {
	docs := make([]string, len(segments))
	for i, seg := range segments {
		docs[i] = seg.Text()
	}
	return docs
}

// Tokenize splits a document into terms on whitespace only.
// No case folding, stemming or punctuation stripping is applied.
func Tokenize(doc string) []string {
	return strings.Fields(doc)
}
