package backends

import (
	"fmt"

	"github.com/axiomatic-ai/inferbert/options"
	"github.com/axiomatic-ai/inferbert/util/fileutil"
)

type Tokenizer struct {
	RustTokenizer    *RustTokenizer
	GoTokenizer      *GoTokenizer
	TokenizerTimings *Timings
	Destroy          func() error
	Runtime          string
	MaxAllowedTokens int
}

// LoadTokenizer attaches a tokenizer to the model if a tokenizer.json file is
// present at the model path. A model without a tokenizer can still serve
// pre-tokenized inputs.
func LoadTokenizer(model *Model, s *options.Options) error {
	tokenizerPath := fileutil.PathJoinSafe(model.Path, "tokenizer.json")
	exists, err := fileutil.FileExists(tokenizerPath)
	if err != nil {
		return fmt.Errorf("error checking for existence of tokenizer.json: %w", err)
	}
	if !exists {
		return nil
	}
	tokenizerBytes, err := fileutil.ReadFileBytes(tokenizerPath)
	if err != nil {
		return err
	}
	switch s.Backend {
	case "ORT", "XLA":
		return loadRustTokenizer(tokenizerBytes, model)
	case "GO":
		return loadGoTokenizer(tokenizerBytes, model)
	default:
		return fmt.Errorf("backend %s not recognized", s.Backend)
	}
}

func TokenizeInputs(batch *PipelineBatch, tk *Tokenizer, inputs []string) error {
	switch tk.Runtime {
	case "RUST":
		return tokenizeInputsRust(batch, tk, inputs)
	case "GO":
		return tokenizeInputsGo(batch, tk, inputs)
	}
	return fmt.Errorf("tokenizer runtime %s not recognized", tk.Runtime)
}

// truncateInput clamps a tokenized input to maxTokens tokens. A non-positive
// maxTokens leaves the input untouched.
func truncateInput(input TokenizedInput, maxTokens int) TokenizedInput {
	if maxTokens <= 0 || len(input.TokenIDs) <= maxTokens {
		return input
	}
	input.Tokens = input.Tokens[:min(len(input.Tokens), maxTokens)]
	input.TokenIDs = input.TokenIDs[:maxTokens]
	input.TypeIDs = input.TypeIDs[:min(len(input.TypeIDs), maxTokens)]
	input.AttentionMask = input.AttentionMask[:min(len(input.AttentionMask), maxTokens)]
	input.SpecialTokensMask = input.SpecialTokensMask[:min(len(input.SpecialTokensMask), maxTokens)]
	input.Offsets = input.Offsets[:min(len(input.Offsets), maxTokens)]
	return input
}

// lastAttendedIndex returns the index of the last non-zero attention mask value.
func lastAttendedIndex(attentionMask []uint32) int {
	index := 0
	for i, v := range attentionMask {
		if v != 0 {
			index = i
		}
	}
	return index
}
