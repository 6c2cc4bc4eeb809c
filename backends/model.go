package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/axiomatic-ai/inferbert/options"
	"github.com/axiomatic-ai/inferbert/util/fileutil"
)

type Model struct {
	ID                    string
	ORTModel              *ORTModel
	GoMLXModel            *GoMLXModel
	Tokenizer             *Tokenizer
	Destroy               func() error
	Pipelines             map[string]Pipeline
	IDLabelMap            map[int]string
	SeparatorToken        string
	Path                  string
	OnnxFilename          string
	OnnxPath              string
	OnnxBytes             []byte
	InputsMeta            []InputOutputInfo
	OutputsMeta           []InputOutputInfo
	MaxPositionEmbeddings int
	PadToken              int64
}

// LoadModel reads the onnx model and its configuration files at path, creates the
// backend session for it, and attaches the tokenizer if a tokenizer.json is present.
func LoadModel(path string, onnxFilename string, opts *options.Options) (*Model, error) {
	model := &Model{
		ID:           path + ":" + onnxFilename,
		Path:         path,
		OnnxFilename: onnxFilename,
		Pipelines:    map[string]Pipeline{},
	}

	if err := GetOnnxModelPath(model); err != nil {
		return nil, err
	}
	onnxBytes, err := fileutil.ReadFileBytes(model.OnnxPath)
	if err != nil {
		return nil, err
	}
	model.OnnxBytes = onnxBytes

	if err := loadModelConfig(model); err != nil {
		return nil, err
	}
	if err := CreateModelBackend(model, opts); err != nil {
		return nil, err
	}
	for _, meta := range model.InputsMeta {
		switch meta.Name {
		case "input_ids", "token_type_ids", "attention_mask":
		default:
			return nil, fmt.Errorf("model input %q is not supported", meta.Name)
		}
	}
	if err := LoadTokenizer(model, opts); err != nil {
		return nil, err
	}

	model.Destroy = func() error {
		var destroyErr error
		if model.Tokenizer != nil {
			destroyErr = model.Tokenizer.Destroy()
		}
		switch opts.Backend {
		case "ORT":
			destroyErr = errors.Join(destroyErr, model.ORTModel.Destroy())
			model.ORTModel = nil
		case "GO", "XLA":
			model.GoMLXModel.Destroy()
			model.GoMLXModel = nil
		}
		return destroyErr
	}
	return model, nil
}

func GetOnnxModelPath(model *Model) error {
	onnxFiles, err := getOnnxFiles(model.Path)
	if err != nil {
		return err
	}
	if len(onnxFiles) == 0 {
		return fmt.Errorf("no .onnx file detected at %s. There should be exactly one .onnx file", model.Path)
	}
	if len(onnxFiles) > 1 {
		if model.OnnxFilename == "" {
			return fmt.Errorf("multiple .onnx files detected at %s and no OnnxFilename specified", model.Path)
		}
		for i := range onnxFiles {
			if onnxFiles[i][1] == model.OnnxFilename {
				model.OnnxPath = fileutil.PathJoinSafe(onnxFiles[i]...)
				return nil
			}
		}
		return fmt.Errorf("file %s not found at %s", model.OnnxFilename, model.Path)
	}
	model.OnnxPath = fileutil.PathJoinSafe(onnxFiles[0]...)
	return nil
}

func getOnnxFiles(path string) ([][]string, error) {
	var onnxFiles [][]string
	walker := func(_ context.Context, _ string, parent string, info os.FileInfo, _ io.Reader) (toContinue bool, err error) {
		if strings.HasSuffix(info.Name(), ".onnx") {
			onnxFiles = append(onnxFiles, []string{parent, info.Name()})
		}
		return true, nil
	}
	err := fileutil.Walk(context.Background(), path, walker)
	return onnxFiles, err
}

func loadModelConfig(model *Model) error {
	// load config.json if it exists, for max_position_embeddings, pad_token_id and id2label
	configPath := fileutil.PathJoinSafe(model.Path, "config.json")
	exists, err := fileutil.FileExists(configPath)
	if err != nil {
		return err
	}
	if exists {
		configBytes, readErr := fileutil.ReadFileBytes(configPath)
		if readErr != nil {
			return readErr
		}
		configMap := map[string]any{}
		readErr = jsoniter.Unmarshal(configBytes, &configMap)
		if readErr != nil {
			return readErr
		}
		if maxPositionEmbeddingsRaw, existsOk := configMap["max_position_embeddings"]; existsOk {
			if maxPositionEmbeddings, castOk := maxPositionEmbeddingsRaw.(float64); castOk {
				model.MaxPositionEmbeddings = int(maxPositionEmbeddings)
			}
		}
		if padTokenRaw, existsOk := configMap["pad_token_id"]; existsOk {
			if padToken, castOk := padTokenRaw.(float64); castOk {
				model.PadToken = int64(padToken)
			}
		}
		if id2LabelRaw, existsOk := configMap["id2label"]; existsOk {
			id2Label, castOk := id2LabelRaw.(map[string]any)
			if !castOk {
				return fmt.Errorf("id2label is not a map")
			}
			id2labelCast := map[int]string{}
			for k, v := range id2Label {
				kInt, kErr := strconv.Atoi(k)
				if kErr != nil {
					return kErr
				}
				label, labelOk := v.(string)
				if !labelOk {
					return fmt.Errorf("id2label value for key %s is not a string", k)
				}
				id2labelCast[kInt] = label
			}
			model.IDLabelMap = id2labelCast
		}
	}

	specialTokensPath := fileutil.PathJoinSafe(model.Path, "special_tokens_map.json")
	exists, err = fileutil.FileExists(specialTokensPath)
	if err != nil {
		return err
	}
	if exists {
		configBytes, readErr := fileutil.ReadFileBytes(specialTokensPath)
		if readErr != nil {
			return readErr
		}
		var configMap map[string]any
		readErr = jsoniter.Unmarshal(configBytes, &configMap)
		if readErr != nil {
			return readErr
		}
		if sepToken, sepExists := configMap["sep_token"]; sepExists {
			switch v := sepToken.(type) {
			case map[string]any:
				t, contentOk := v["content"]
				if !contentOk {
					return fmt.Errorf("sep_token is a map but no content field is available")
				}
				tString, stringOk := t.(string)
				if !stringOk {
					return fmt.Errorf("sep_token cannot be converted to string: %v", t)
				}
				model.SeparatorToken = tString
			case string:
				model.SeparatorToken = v
			default:
				return fmt.Errorf("sep_token has unexpected type: %v", v)
			}
		}
	}
	return nil
}

// ReshapeOutput converts the flat output of a classification head into one row
// of logits per batch input.
func ReshapeOutput[T float32 | int64 | int32](input []T, meta InputOutputInfo, batchSize int) [][]T {
	dimensions := meta.Dimensions.ValuesInt()
	dimension := dimensions[len(dimensions)-1]
	if dimension <= 0 && batchSize > 0 {
		// the logit dimension can be -1 if it was so exported from onnx even though
		// there is a fixed output dimension, so infer it from the data.
		dimension = len(input) / batchSize
	}
	output := make([][]T, batchSize)
	counter := 0
	for batchIndex := range batchSize {
		logits := make([]T, dimension)
		for i := 0; i < dimension; i++ {
			logits[i] = input[counter]
			counter++
		}
		output[batchIndex] = logits
	}
	return output
}
