package safeconv

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntSliceToUint32Slice(t *testing.T) {
	out := IntSliceToUint32Slice([]int{-1, 0, 42, math.MaxInt64})
	assert.Equal(t, []uint32{0, 0, 42, math.MaxUint32}, out)
}

func TestIntOffsetsToUintPairs(t *testing.T) {
	out := IntOffsetsToUintPairs([][]int{{0, 5}, {-1, 3}, {7}})
	assert.Equal(t, [][2]uint{{0, 5}, {0, 3}, {7, 0}}, out)
}

func TestU64ToDuration(t *testing.T) {
	assert.Equal(t, time.Duration(100), U64ToDuration(100))
	assert.Equal(t, time.Duration(math.MaxInt64), U64ToDuration(math.MaxUint64))
}
