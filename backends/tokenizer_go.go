package backends

import (
	"bytes"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"github.com/axiomatic-ai/inferbert/util/safeconv"
)

type GoTokenizer struct {
	Tokenizer *tokenizer.Tokenizer
}

func loadGoTokenizer(tokenizerBytes []byte, model *Model) error {
	tk, tkErr := pretrained.FromReader(bytes.NewReader(tokenizerBytes))
	if tkErr != nil {
		return tkErr
	}
	model.Tokenizer = &Tokenizer{
		Runtime:          "GO",
		GoTokenizer:      &GoTokenizer{Tokenizer: tk},
		TokenizerTimings: &Timings{},
		MaxAllowedTokens: model.MaxPositionEmbeddings,
		Destroy: func() error {
			return nil
		},
	}
	return nil
}

func tokenizeInputsGo(batch *PipelineBatch, tk *Tokenizer, inputs []string) error {
	outputs := make([]TokenizedInput, len(inputs))
	maxSequence := 0
	goTK := tk.GoTokenizer.Tokenizer
	for i, input := range inputs {
		output, err := goTK.EncodeSingle(input, true)
		if err != nil {
			return err
		}

		tokenized := truncateInput(TokenizedInput{
			Raw:               input,
			Tokens:            output.Tokens,
			TokenIDs:          safeconv.IntSliceToUint32Slice(output.Ids),
			TypeIDs:           safeconv.IntSliceToUint32Slice(output.TypeIds),
			AttentionMask:     safeconv.IntSliceToUint32Slice(output.AttentionMask),
			SpecialTokensMask: safeconv.IntSliceToUint32Slice(output.SpecialTokenMask),
			Offsets:           safeconv.IntOffsetsToUintPairs(output.Offsets),
		}, tk.MaxAllowedTokens)
		tokenized.MaxAttentionIndex = lastAttendedIndex(tokenized.AttentionMask)

		outputs[i] = tokenized
		if tokenized.MaxAttentionIndex > maxSequence {
			maxSequence = tokenized.MaxAttentionIndex
		}
	}
	batch.Input = outputs
	batch.MaxSequenceLength = maxSequence + 1
	return nil
}
