package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateInput(t *testing.T) {
	input := TokenizedInput{
		Tokens:            []string{"[CLS]", "a", "b", "c", "[SEP]"},
		TokenIDs:          []uint32{101, 5, 6, 7, 102},
		TypeIDs:           []uint32{0, 0, 0, 0, 0},
		AttentionMask:     []uint32{1, 1, 1, 1, 1},
		SpecialTokensMask: []uint32{1, 0, 0, 0, 1},
		Offsets:           [][2]uint{{0, 0}, {0, 1}, {1, 2}, {2, 3}, {0, 0}},
	}

	truncated := truncateInput(input, 3)
	assert.Equal(t, []string{"[CLS]", "a", "b"}, truncated.Tokens)
	assert.Equal(t, []uint32{101, 5, 6}, truncated.TokenIDs)
	assert.Len(t, truncated.TypeIDs, 3)
	assert.Len(t, truncated.AttentionMask, 3)
	assert.Len(t, truncated.SpecialTokensMask, 3)
	assert.Len(t, truncated.Offsets, 3)
}

func TestTruncateInputNoop(t *testing.T) {
	input := TokenizedInput{
		Tokens:        []string{"[CLS]", "a", "[SEP]"},
		TokenIDs:      []uint32{101, 5, 102},
		AttentionMask: []uint32{1, 1, 1},
	}
	assert.Equal(t, input, truncateInput(input, 0))
	assert.Equal(t, input, truncateInput(input, 3))
	assert.Equal(t, input, truncateInput(input, 10))
}

func TestLastAttendedIndex(t *testing.T) {
	assert.Equal(t, 2, lastAttendedIndex([]uint32{1, 1, 1, 0, 0}))
	assert.Equal(t, 0, lastAttendedIndex([]uint32{0, 0}))
	assert.Equal(t, 0, lastAttendedIndex(nil))
}
