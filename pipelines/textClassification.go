package pipelines

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/axiomatic-ai/inferbert/backends"
	"github.com/axiomatic-ai/inferbert/options"
	"github.com/axiomatic-ai/inferbert/util/safeconv"
	"github.com/axiomatic-ai/inferbert/util/vectorutil"
)

// types

type TextClassificationPipeline struct {
	*backends.BasePipeline
	IDLabelMap              map[int]string
	AggregationFunctionName string
	ProblemType             string
	ExpectedClasses         int
}

type ClassificationOutput struct {
	Label string
	Score float32
}

type TextClassificationOutput struct {
	ClassificationOutputs [][]ClassificationOutput
}

func (t *TextClassificationOutput) GetOutput() []any {
	out := make([]any, len(t.ClassificationOutputs))
	for i, classificationOutput := range t.ClassificationOutputs {
		out[i] = any(classificationOutput)
	}
	return out
}

// EncodedInput is a pre-tokenized input: three parallel arrays of token IDs,
// segment IDs and padding mask, as produced by an external tokenizer.
type EncodedInput struct {
	TokenIDs    []uint32
	SegmentIDs  []uint32
	PaddingMask []uint32
}

// options

func WithSoftmax() backends.PipelineOption[*TextClassificationPipeline] {
	return func(pipeline *TextClassificationPipeline) error {
		pipeline.AggregationFunctionName = "SOFTMAX"
		return nil
	}
}

func WithSigmoid() backends.PipelineOption[*TextClassificationPipeline] {
	return func(pipeline *TextClassificationPipeline) error {
		pipeline.AggregationFunctionName = "SIGMOID"
		return nil
	}
}

func WithSingleLabel() backends.PipelineOption[*TextClassificationPipeline] {
	return func(pipeline *TextClassificationPipeline) error {
		pipeline.ProblemType = "singleLabel"
		return nil
	}
}

func WithMultiLabel() backends.PipelineOption[*TextClassificationPipeline] {
	return func(pipeline *TextClassificationPipeline) error {
		pipeline.ProblemType = "multiLabel"
		return nil
	}
}

// WithExpectedClasses validates at creation time that the model classifies
// into exactly n classes.
func WithExpectedClasses(n int) backends.PipelineOption[*TextClassificationPipeline] {
	return func(pipeline *TextClassificationPipeline) error {
		if n <= 0 {
			return fmt.Errorf("expected class count must be positive, got %d", n)
		}
		pipeline.ExpectedClasses = n
		return nil
	}
}

// NewTextClassificationPipeline initializes a new text classification pipeline.
func NewTextClassificationPipeline(config backends.PipelineConfig[*TextClassificationPipeline], s *options.Options, model *backends.Model) (*TextClassificationPipeline, error) {
	defaultPipeline, err := backends.NewBasePipeline(config, s, model)
	if err != nil {
		return nil, err
	}

	pipeline := &TextClassificationPipeline{BasePipeline: defaultPipeline}
	for _, o := range config.Options {
		if optErr := o(pipeline); optErr != nil {
			return nil, optErr
		}
	}

	if pipeline.ProblemType == "" {
		pipeline.ProblemType = "singleLabel"
	}
	if pipeline.AggregationFunctionName == "" {
		if pipeline.ProblemType == "singleLabel" {
			pipeline.AggregationFunctionName = "SOFTMAX"
		} else {
			pipeline.AggregationFunctionName = "SIGMOID"
		}
	}

	pipeline.IDLabelMap = model.IDLabelMap

	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// INTERFACE IMPLEMENTATION

// GetMetadata returns metadata information about the pipeline, in particular:
// OutputInfo: names and dimensions of the output layer used for text classification.
func (p *TextClassificationPipeline) GetMetadata() backends.PipelineMetadata {
	return backends.PipelineMetadata{
		OutputsInfo: []backends.OutputInfo{
			{
				Name:       p.Model.OutputsMeta[0].Name,
				Dimensions: p.Model.OutputsMeta[0].Dimensions,
			},
		},
	}
}

// GetModel returns the model used by the pipeline.
func (p *TextClassificationPipeline) GetModel() *backends.Model {
	return p.Model
}

// GetStats returns the runtime statistics for the pipeline.
func (p *TextClassificationPipeline) GetStats() []string {
	stats := []string{
		fmt.Sprintf("Statistics for pipeline: %s", p.PipelineName),
	}
	if p.Model.Tokenizer != nil {
		timings := p.Model.Tokenizer.TokenizerTimings
		stats = append(stats, fmt.Sprintf("Tokenizer: Total time=%s, Execution count=%d, Average query time=%s",
			safeconv.U64ToDuration(timings.TotalNS),
			timings.NumCalls,
			safeconv.U64ToDuration(uint64(float64(timings.TotalNS)/math.Max(1, float64(timings.NumCalls))))))
	}
	stats = append(stats, fmt.Sprintf("Inference: Total time=%s, Execution count=%d, Average query time=%s",
		safeconv.U64ToDuration(p.PipelineTimings.TotalNS),
		p.PipelineTimings.NumCalls,
		safeconv.U64ToDuration(uint64(float64(p.PipelineTimings.TotalNS)/math.Max(1, float64(p.PipelineTimings.NumCalls))))))
	return stats
}

// Validate checks that the pipeline is valid.
func (p *TextClassificationPipeline) Validate() error {
	var validationErrors []error

	if len(p.IDLabelMap) <= 0 {
		validationErrors = append(validationErrors, fmt.Errorf("pipeline configuration invalid: length of id2label map for text classification pipeline must be greater than zero"))
	}

	outDims := p.Model.OutputsMeta[0].Dimensions
	if len(outDims) != 2 {
		validationErrors = append(validationErrors, fmt.Errorf("pipeline configuration invalid: text classification must have 2 dimensional output"))
	}
	dynamicBatch := false
	for _, d := range outDims {
		if d == -1 || d == 0 {
			if dynamicBatch {
				validationErrors = append(validationErrors, fmt.Errorf("pipeline configuration invalid: text classification must have at most one dynamic dimension (the batch)"))
				break
			}
			dynamicBatch = true
		}
	}
	nLogits := int(outDims[len(outDims)-1])
	if nLogits > 0 && len(p.IDLabelMap) != nLogits {
		validationErrors = append(validationErrors, fmt.Errorf("pipeline configuration invalid: length of id2label map does not match number of logits in output (%d)", nLogits))
	}
	if p.ExpectedClasses > 0 && len(p.IDLabelMap) != p.ExpectedClasses {
		validationErrors = append(validationErrors, fmt.Errorf("pipeline configuration invalid: model has %d classes but %d were expected", len(p.IDLabelMap), p.ExpectedClasses))
	}
	return errors.Join(validationErrors...)
}

// Preprocess tokenizes the input strings and builds the input tensors.
func (p *TextClassificationPipeline) Preprocess(batch *backends.PipelineBatch, inputs []string) error {
	tokenizer := p.Model.Tokenizer
	if tokenizer == nil {
		return errors.New("model has no tokenizer attached: raw string inputs require a tokenizer.json, use RunEncoded for pre-tokenized inputs")
	}
	start := time.Now()
	if err := backends.TokenizeInputs(batch, tokenizer, inputs); err != nil {
		return err
	}
	atomic.AddUint64(&tokenizer.TokenizerTimings.NumCalls, 1)
	atomic.AddUint64(&tokenizer.TokenizerTimings.TotalNS, uint64(time.Since(start)))
	return backends.CreateInputTensors(batch, p.Model, p.Runtime)
}

// PreprocessEncoded builds the input tensors directly from pre-tokenized
// inputs, bypassing the tokenizer.
func (p *TextClassificationPipeline) PreprocessEncoded(batch *backends.PipelineBatch, inputs []EncodedInput) error {
	if err := buildEncodedBatch(batch, inputs); err != nil {
		return err
	}
	return backends.CreateInputTensors(batch, p.Model, p.Runtime)
}

func buildEncodedBatch(batch *backends.PipelineBatch, inputs []EncodedInput) error {
	tokenized := make([]backends.TokenizedInput, len(inputs))
	maxSequence := 0
	for i, input := range inputs {
		if len(input.TokenIDs) == 0 {
			return fmt.Errorf("encoded input %d is empty", i)
		}
		if len(input.SegmentIDs) != len(input.TokenIDs) || len(input.PaddingMask) != len(input.TokenIDs) {
			return fmt.Errorf("encoded input %d: token IDs, segment IDs and padding mask must have equal length", i)
		}
		maxAttentionIndex := 0
		for j, maskValue := range input.PaddingMask {
			if maskValue != 0 {
				maxAttentionIndex = j
			}
		}
		tokenized[i] = backends.TokenizedInput{
			TokenIDs:          input.TokenIDs,
			TypeIDs:           input.SegmentIDs,
			AttentionMask:     input.PaddingMask,
			MaxAttentionIndex: maxAttentionIndex,
		}
		if maxAttentionIndex > maxSequence {
			maxSequence = maxAttentionIndex
		}
	}
	batch.Input = tokenized
	batch.MaxSequenceLength = maxSequence + 1
	return nil
}

func (p *TextClassificationPipeline) Forward(batch *backends.PipelineBatch) error {
	start := time.Now()
	if err := backends.RunSessionOnBatch(batch, p.BasePipeline); err != nil {
		return err
	}
	atomic.AddUint64(&p.PipelineTimings.NumCalls, 1)
	atomic.AddUint64(&p.PipelineTimings.TotalNS, uint64(time.Since(start)))
	return nil
}

func (p *TextClassificationPipeline) Postprocess(batch *backends.PipelineBatch) (*TextClassificationOutput, error) {
	logits, ok := batch.OutputValues[0].([][]float32)
	if !ok {
		return nil, fmt.Errorf("output has unexpected type %T, expected [][]float32", batch.OutputValues[0])
	}

	var aggregationFunction func([]float32) []float32
	switch p.AggregationFunctionName {
	case "SIGMOID":
		aggregationFunction = vectorutil.Sigmoid
	case "SOFTMAX":
		aggregationFunction = vectorutil.SoftMax
	default:
		return nil, fmt.Errorf("aggregation function %s is not supported", p.AggregationFunctionName)
	}

	batchClassificationOutputs := TextClassificationOutput{
		ClassificationOutputs: make([][]ClassificationOutput, len(batch.Input)),
	}

	var err error
	for i := range batch.Input {
		scores := aggregationFunction(logits[i])
		switch p.ProblemType {
		case "singleLabel":
			index, value, errArgMax := vectorutil.ArgMax(scores)
			if errArgMax != nil {
				err = errArgMax
				continue
			}
			class, classOk := p.IDLabelMap[index]
			if !classOk {
				err = fmt.Errorf("class with index number %d not found in id label map", index)
			}
			batchClassificationOutputs.ClassificationOutputs[i] = []ClassificationOutput{
				{
					Label: class,
					Score: value,
				},
			}
		case "multiLabel":
			inputClassificationOutputs := make([]ClassificationOutput, len(p.IDLabelMap))
			for j := range scores {
				class, classOk := p.IDLabelMap[j]
				if !classOk {
					err = fmt.Errorf("class with index number %d not found in id label map", j)
				}
				inputClassificationOutputs[j] = ClassificationOutput{
					Label: class,
					Score: scores[j],
				}
			}
			batchClassificationOutputs.ClassificationOutputs[i] = inputClassificationOutputs
		default:
			err = fmt.Errorf("problem type %s not recognized", p.ProblemType)
		}
	}
	return &batchClassificationOutputs, err
}

// Run the pipeline on a string batch.
func (p *TextClassificationPipeline) Run(inputs []string) (backends.PipelineBatchOutput, error) {
	return p.RunPipeline(inputs)
}

// RunPipeline tokenizes the raw input strings with the attached tokenizer and
// classifies them.
func (p *TextClassificationPipeline) RunPipeline(inputs []string) (*TextClassificationOutput, error) {
	var runErrors []error
	batch := backends.NewBatch(len(inputs))
	defer func(*backends.PipelineBatch) {
		runErrors = append(runErrors, batch.Destroy())
	}(batch)

	runErrors = append(runErrors, p.Preprocess(batch, inputs))
	if e := errors.Join(runErrors...); e != nil {
		return nil, e
	}

	runErrors = append(runErrors, p.Forward(batch))
	if e := errors.Join(runErrors...); e != nil {
		return nil, e
	}

	result, postErr := p.Postprocess(batch)
	runErrors = append(runErrors, postErr)
	return result, errors.Join(runErrors...)
}

// RunEncoded classifies pre-tokenized inputs. It does not require a tokenizer
// to be attached to the model.
func (p *TextClassificationPipeline) RunEncoded(inputs []EncodedInput) (*TextClassificationOutput, error) {
	var runErrors []error
	batch := backends.NewBatch(len(inputs))
	defer func(*backends.PipelineBatch) {
		runErrors = append(runErrors, batch.Destroy())
	}(batch)

	runErrors = append(runErrors, p.PreprocessEncoded(batch, inputs))
	if e := errors.Join(runErrors...); e != nil {
		return nil, e
	}

	runErrors = append(runErrors, p.Forward(batch))
	if e := errors.Join(runErrors...); e != nil {
		return nil, e
	}

	result, postErr := p.Postprocess(batch)
	runErrors = append(runErrors, postErr)
	return result, errors.Join(runErrors...)
}
