package segment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/segscope/backend/internal/segment"
)

func TestSegmentText(t *testing.T) {
	seg := segment.Segment{Tokens: []segment.Token{{Original: "a,"}, {Original: "B"}, {Original: "☉"}}}

	assert.Equal(t, "a, B ☉", seg.Text())
	assert.Equal(t, "", segment.Segment{}.Text())
}

func TestFromStrings(t *testing.T) {
	segs := segment.FromStrings("one  two", "", "three")

	assert.Len(t, segs, 3)
	assert.Len(t, segs[0].Tokens, 2)
	assert.Empty(t, segs[1].Tokens)
	assert.Equal(t, "three", segs[2].Text())
}
