package segment

import "strings"

// Token is a single unit produced by the upstream tokenizer
type Token struct {
	Original string `json:"original" yaml:"original"`
}

// Segment is an ordered run of tokens, identified by its position in a project
type Segment struct {
	Tokens []Token `json:"tokens" yaml:"tokens"`
}

// Text joins the token originals with a single space, in token order
func (s Segment) Text() string {
	parts := make([]string, len(s.Tokens))
	for i, t := range s.Tokens {
		parts[i] = t.Original
	}
	return strings.Join(parts, " ")
}

// Project is the unit owned by the project store
type Project struct {
	Name     string    `json:"name" yaml:"name"`
	Segments []Segment `json:"segments" yaml:"segments"`
}

// FromStrings builds segments by splitting each line on whitespace.
// Handy for fixtures and plain-text imports.
func FromStrings(lines ...string) []Segment {
	segs := make([]Segment, len(lines))
	for i, line := range lines {
		fields := strings.Fields(line)
		tokens := make([]Token, len(fields))
		for j, f := range fields {
			tokens[j] = Token{Original: f}
		}
		segs[i] = Segment{Tokens: tokens}
	}
	return segs
}
