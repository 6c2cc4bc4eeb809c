package pipelines

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/axiomatic-ai/inferbert/backends"
	"github.com/axiomatic-ai/inferbert/options"
)

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) <= 1e-4
}

func sentimentModel() *backends.Model {
	return &backends.Model{
		IDLabelMap: map[int]string{0: "NEGATIVE", 1: "POSITIVE"},
		OutputsMeta: []backends.InputOutputInfo{
			{Name: "logits", Dimensions: backends.NewShape(-1, 2)},
		},
		Pipelines: map[string]backends.Pipeline{},
	}
}

func newTestPipeline(t *testing.T, model *backends.Model, opts ...backends.PipelineOption[*TextClassificationPipeline]) *TextClassificationPipeline {
	t.Helper()
	config := backends.PipelineConfig[*TextClassificationPipeline]{
		ModelPath: "/dev/null",
		Name:      "testPipeline",
		Options:   opts,
	}
	pipeline, err := NewTextClassificationPipeline(config, options.Defaults(), model)
	assert.NoError(t, err)
	return pipeline
}

func TestNewPipelineDefaults(t *testing.T) {
	pipeline := newTestPipeline(t, sentimentModel())
	assert.Equal(t, "singleLabel", pipeline.ProblemType)
	assert.Equal(t, "SOFTMAX", pipeline.AggregationFunctionName)

	pipeline = newTestPipeline(t, sentimentModel(), WithMultiLabel())
	assert.Equal(t, "multiLabel", pipeline.ProblemType)
	assert.Equal(t, "SIGMOID", pipeline.AggregationFunctionName)
}

func TestNewPipelineExpectedClassesMismatch(t *testing.T) {
	config := backends.PipelineConfig[*TextClassificationPipeline]{
		ModelPath: "/dev/null",
		Name:      "testPipeline",
		Options: []backends.PipelineOption[*TextClassificationPipeline]{
			WithExpectedClasses(3),
		},
	}
	_, err := NewTextClassificationPipeline(config, options.Defaults(), sentimentModel())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	pipeline := newTestPipeline(t, sentimentModel())

	pipeline.IDLabelMap = map[int]string{}
	assert.Error(t, pipeline.Validate())

	pipeline.IDLabelMap = map[int]string{0: "NEGATIVE", 1: "POSITIVE"}
	pipeline.Model.OutputsMeta[0].Dimensions = backends.NewShape(-1, 2, 2)
	assert.Error(t, pipeline.Validate())

	pipeline.Model.OutputsMeta[0].Dimensions = backends.NewShape(-1, -1)
	assert.Error(t, pipeline.Validate())

	pipeline.Model.OutputsMeta[0].Dimensions = backends.NewShape(-1, 3)
	assert.Error(t, pipeline.Validate())

	pipeline.Model.OutputsMeta[0].Dimensions = backends.NewShape(-1, 2)
	assert.NoError(t, pipeline.Validate())
}

func TestPostprocessSingleLabel(t *testing.T) {
	pipeline := newTestPipeline(t, sentimentModel())

	batch := backends.NewBatch(2)
	batch.Input = make([]backends.TokenizedInput, 2)
	batch.OutputValues = []any{[][]float32{
		{-1, 1},
		{2, -2},
	}}

	output, err := pipeline.Postprocess(batch)
	assert.NoError(t, err)
	assert.Len(t, output.ClassificationOutputs, 2)

	first := output.ClassificationOutputs[0]
	assert.Len(t, first, 1)
	assert.Equal(t, "POSITIVE", first[0].Label)
	assert.True(t, almostEqual(first[0].Score, 0.8808))

	second := output.ClassificationOutputs[1]
	assert.Len(t, second, 1)
	assert.Equal(t, "NEGATIVE", second[0].Label)
	assert.True(t, almostEqual(second[0].Score, 0.9820))
}

func TestPostprocessMultiLabel(t *testing.T) {
	pipeline := newTestPipeline(t, sentimentModel(), WithMultiLabel())

	batch := backends.NewBatch(1)
	batch.Input = make([]backends.TokenizedInput, 1)
	batch.OutputValues = []any{[][]float32{
		{-1, 1},
	}}

	output, err := pipeline.Postprocess(batch)
	assert.NoError(t, err)
	assert.Len(t, output.ClassificationOutputs, 1)

	classes := output.ClassificationOutputs[0]
	assert.Len(t, classes, 2)
	assert.Equal(t, "NEGATIVE", classes[0].Label)
	assert.True(t, almostEqual(classes[0].Score, 0.2689))
	assert.Equal(t, "POSITIVE", classes[1].Label)
	assert.True(t, almostEqual(classes[1].Score, 0.7311))
}

func TestPostprocessBadOutputType(t *testing.T) {
	pipeline := newTestPipeline(t, sentimentModel())

	batch := backends.NewBatch(1)
	batch.Input = make([]backends.TokenizedInput, 1)
	batch.OutputValues = []any{[]float32{0.5}}

	_, err := pipeline.Postprocess(batch)
	assert.Error(t, err)
}

func TestPreprocessWithoutTokenizer(t *testing.T) {
	pipeline := newTestPipeline(t, sentimentModel())

	batch := backends.NewBatch(1)
	err := pipeline.Preprocess(batch, []string{"a sentence"})
	assert.Error(t, err)
	assert.ErrorContains(t, err, "RunEncoded")
}

func TestBuildEncodedBatch(t *testing.T) {
	batch := backends.NewBatch(2)
	err := buildEncodedBatch(batch, []EncodedInput{
		{
			TokenIDs:    []uint32{101, 2023, 102, 0, 0},
			SegmentIDs:  []uint32{0, 0, 0, 0, 0},
			PaddingMask: []uint32{1, 1, 1, 0, 0},
		},
		{
			TokenIDs:    []uint32{101, 102},
			SegmentIDs:  []uint32{0, 0},
			PaddingMask: []uint32{1, 1},
		},
	})
	assert.NoError(t, err)
	assert.Len(t, batch.Input, 2)
	assert.Equal(t, 2, batch.Input[0].MaxAttentionIndex)
	assert.Equal(t, 1, batch.Input[1].MaxAttentionIndex)
	assert.Equal(t, 3, batch.MaxSequenceLength)
}

func TestBuildEncodedBatchEmptyInput(t *testing.T) {
	batch := backends.NewBatch(1)
	err := buildEncodedBatch(batch, []EncodedInput{{}})
	assert.Error(t, err)
}

func TestBuildEncodedBatchLengthMismatch(t *testing.T) {
	batch := backends.NewBatch(1)
	err := buildEncodedBatch(batch, []EncodedInput{
		{
			TokenIDs:    []uint32{101, 102},
			SegmentIDs:  []uint32{0},
			PaddingMask: []uint32{1, 1},
		},
	})
	assert.Error(t, err)
}

func TestGetStatsWithoutTokenizer(t *testing.T) {
	pipeline := newTestPipeline(t, sentimentModel())
	stats := pipeline.GetStats()
	assert.Len(t, stats, 2)
}

func TestGetMetadata(t *testing.T) {
	pipeline := newTestPipeline(t, sentimentModel())
	metadata := pipeline.GetMetadata()
	assert.Len(t, metadata.OutputsInfo, 1)
	assert.Equal(t, "logits", metadata.OutputsInfo[0].Name)
}
