package backends

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadModelConfig(t *testing.T) {
	modelDir := t.TempDir()

	config := `{
		"max_position_embeddings": 512,
		"pad_token_id": 0,
		"id2label": {"0": "NEGATIVE", "1": "POSITIVE"}
	}`
	assert.NoError(t, os.WriteFile(filepath.Join(modelDir, "config.json"), []byte(config), 0o644))

	specialTokens := `{"sep_token": {"content": "[SEP]"}}`
	assert.NoError(t, os.WriteFile(filepath.Join(modelDir, "special_tokens_map.json"), []byte(specialTokens), 0o644))

	model := &Model{Path: modelDir}
	assert.NoError(t, loadModelConfig(model))
	assert.Equal(t, 512, model.MaxPositionEmbeddings)
	assert.Equal(t, int64(0), model.PadToken)
	assert.Equal(t, map[int]string{0: "NEGATIVE", 1: "POSITIVE"}, model.IDLabelMap)
	assert.Equal(t, "[SEP]", model.SeparatorToken)
}

func TestLoadModelConfigStringSepToken(t *testing.T) {
	modelDir := t.TempDir()
	specialTokens := `{"sep_token": "</s>"}`
	assert.NoError(t, os.WriteFile(filepath.Join(modelDir, "special_tokens_map.json"), []byte(specialTokens), 0o644))

	model := &Model{Path: modelDir}
	assert.NoError(t, loadModelConfig(model))
	assert.Equal(t, "</s>", model.SeparatorToken)
}

func TestLoadModelConfigMissingFiles(t *testing.T) {
	model := &Model{Path: t.TempDir()}
	assert.NoError(t, loadModelConfig(model))
	assert.Empty(t, model.IDLabelMap)
}

func TestGetOnnxModelPath(t *testing.T) {
	modelDir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(modelDir, "model.onnx"), []byte("onnx"), 0o644))

	model := &Model{Path: modelDir}
	assert.NoError(t, GetOnnxModelPath(model))
	assert.Equal(t, filepath.Join(modelDir, "model.onnx"), model.OnnxPath)
}

func TestGetOnnxModelPathNoModel(t *testing.T) {
	model := &Model{Path: t.TempDir()}
	assert.Error(t, GetOnnxModelPath(model))
}

func TestGetOnnxModelPathMultipleModels(t *testing.T) {
	modelDir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(modelDir, "model.onnx"), []byte("onnx"), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(modelDir, "model_quantized.onnx"), []byte("onnx"), 0o644))

	model := &Model{Path: modelDir}
	assert.Error(t, GetOnnxModelPath(model))

	model = &Model{Path: modelDir, OnnxFilename: "model_quantized.onnx"}
	assert.NoError(t, GetOnnxModelPath(model))
	assert.Equal(t, filepath.Join(modelDir, "model_quantized.onnx"), model.OnnxPath)

	model = &Model{Path: modelDir, OnnxFilename: "missing.onnx"}
	assert.Error(t, GetOnnxModelPath(model))
}

func TestReshapeOutput(t *testing.T) {
	meta := InputOutputInfo{Name: "logits", Dimensions: NewShape(-1, 2)}
	output := ReshapeOutput([]float32{1, 2, 3, 4}, meta, 2)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, output)
}

func TestReshapeOutputInferredDimension(t *testing.T) {
	// a fully dynamic output shape falls back to inferring the logit
	// dimension from the batch size
	meta := InputOutputInfo{Name: "logits", Dimensions: NewShape(-1, -1)}
	output := ReshapeOutput([]int64{1, 2, 3, 4, 5, 6}, meta, 2)
	assert.Equal(t, [][]int64{{1, 2, 3}, {4, 5, 6}}, output)
}
