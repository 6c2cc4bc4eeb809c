package backends

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
)

func TestCreateInputTensorsGoMLXPadding(t *testing.T) {
	model := &Model{
		PadToken: 7,
		InputsMeta: []InputOutputInfo{
			{Name: "input_ids"},
			{Name: "token_type_ids"},
			{Name: "attention_mask"},
		},
	}

	batch := NewBatch(2)
	batch.Input = []TokenizedInput{
		{
			TokenIDs:          []uint32{101, 2023, 102},
			TypeIDs:           []uint32{0, 0, 0},
			AttentionMask:     []uint32{1, 1, 1},
			MaxAttentionIndex: 2,
		},
		{
			TokenIDs:          []uint32{101, 102},
			TypeIDs:           []uint32{0, 0},
			AttentionMask:     []uint32{1, 1},
			MaxAttentionIndex: 1,
		},
	}
	batch.MaxSequenceLength = 3

	assert.NoError(t, createInputTensorsGoMLX(batch, model))

	inputTensors, ok := batch.InputValues.([]*tensors.Tensor)
	assert.True(t, ok)
	assert.Len(t, inputTensors, 3)

	// the short input is right-padded with the model's pad token
	var ids []int64
	assert.NoError(t, tensors.ConstFlatData(inputTensors[0], func(flat []int64) {
		ids = append(ids, flat...)
	}))
	assert.Equal(t, []int64{101, 2023, 102, 101, 102, 7}, ids)

	var mask []int64
	assert.NoError(t, tensors.ConstFlatData(inputTensors[2], func(flat []int64) {
		mask = append(mask, flat...)
	}))
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 0}, mask)

	assert.Equal(t, [][]bool{{true, true, true}, {true, true, false}}, batch.PaddingMask)
	assert.NoError(t, batch.Destroy())
}

func TestCreateInputTensorsGoMLXUnknownInput(t *testing.T) {
	model := &Model{
		InputsMeta: []InputOutputInfo{{Name: "pixel_values"}},
	}
	batch := NewBatch(1)
	batch.Input = []TokenizedInput{{TokenIDs: []uint32{101}}}
	batch.MaxSequenceLength = 1

	assert.Error(t, createInputTensorsGoMLX(batch, model))
}
