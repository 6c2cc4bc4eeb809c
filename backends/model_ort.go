package backends

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/axiomatic-ai/inferbert/options"
)

type ORTModel struct {
	Session        *ort.DynamicAdvancedSession
	SessionOptions *ort.SessionOptions
	Options        *options.ORTOptions
	Destroy        func() error
}

func createORTModelBackend(model *Model, opts *options.Options) error {
	sessionOptions, ok := opts.BackendOptions.(*ort.SessionOptions)
	if !ok {
		return errors.New("ORT session options are not initialized")
	}

	inputs, outputs, err := loadInputOutputMetaORT(model.OnnxBytes)
	if err != nil {
		return err
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(
		model.OnnxBytes,
		GetNames(inputs),
		GetNames(outputs),
		sessionOptions,
	)
	if err != nil {
		return err
	}

	model.ORTModel = &ORTModel{
		Session:        session,
		SessionOptions: sessionOptions,
		Options:        opts.ORTOptions,
		Destroy: func() error {
			return session.Destroy()
		},
	}
	model.InputsMeta = inputs
	model.OutputsMeta = outputs
	return nil
}

func loadInputOutputMetaORT(onnxBytes []byte) ([]InputOutputInfo, []InputOutputInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(onnxBytes)
	if err != nil {
		return nil, nil, err
	}
	return convertORTInputOutputs(inputs), convertORTInputOutputs(outputs), nil
}

func createInputTensorsORT(batch *PipelineBatch, model *Model) error {
	batchSize := batch.Size
	maxSequenceLength := batch.MaxSequenceLength
	total := batchSize * maxSequenceLength

	inputVals := make([]ort.Value, len(model.InputsMeta))
	masks := make([][]bool, batchSize)

	for mi, meta := range model.InputsMeta {
		backing := make([]int64, total)
		idx := 0
		switch meta.Name {
		case "input_ids":
			for bi, inp := range batch.Input {
				seqLen := len(inp.TokenIDs)
				maskRow := make([]bool, maxSequenceLength)
				for pos := range maxSequenceLength {
					if pos < seqLen {
						backing[idx] = int64(inp.TokenIDs[pos])
						maskRow[pos] = true
					} else {
						backing[idx] = model.PadToken
					}
					idx++
				}
				masks[bi] = maskRow
			}
		case "token_type_ids":
			for _, inp := range batch.Input {
				seqLen := len(inp.TypeIDs)
				for pos := range maxSequenceLength {
					if pos < seqLen {
						backing[idx] = int64(inp.TypeIDs[pos])
					}
					idx++
				}
			}
		case "attention_mask":
			for _, inp := range batch.Input {
				seqLen := len(inp.AttentionMask)
				for pos := range maxSequenceLength {
					if pos < seqLen {
						backing[idx] = int64(inp.AttentionMask[pos])
					}
					idx++
				}
			}
		default:
			return fmt.Errorf("unrecognized input %q", meta.Name)
		}

		t, err := ort.NewTensor(ort.NewShape(int64(batchSize), int64(maxSequenceLength)), backing)
		if err != nil {
			return err
		}
		inputVals[mi] = t
	}

	batch.InputValues = inputVals
	batch.PaddingMask = masks
	batch.DestroyInputs = func() error {
		var agg error
		if values, ok := batch.InputValues.([]ort.Value); ok {
			for _, t := range values {
				agg = errors.Join(agg, t.Destroy())
			}
		} else {
			agg = errors.Join(agg, errors.New("batch.InputValues has incorrect type"))
		}
		return agg
	}
	return nil
}

func runORTSessionOnBatch(batch *PipelineBatch, p *BasePipeline) error {
	var err error

	outputTensors := make([]ort.Value, len(p.Model.OutputsMeta))
	errOnnx := p.Model.ORTModel.Session.Run(batch.InputValues.([]ort.Value), outputTensors)
	if errOnnx != nil {
		return errOnnx
	}
	defer func() {
		for _, t := range outputTensors {
			err = errors.Join(err, t.Destroy())
		}
	}()

	convertedOutput := make([]any, len(outputTensors))
	for i, t := range outputTensors {
		switch v := t.(type) {
		case *ort.Tensor[float32]:
			convertedOutput[i] = ReshapeOutput(v.GetData(), p.Model.OutputsMeta[i], batch.Size)
		case *ort.Tensor[int64]:
			convertedOutput[i] = ReshapeOutput(v.GetData(), p.Model.OutputsMeta[i], batch.Size)
		default:
			return fmt.Errorf("unsupported output tensor type %T", t)
		}
	}
	batch.OutputValues = convertedOutput
	return err
}

func convertORTInputOutputs(inputOutputs []ort.InputOutputInfo) []InputOutputInfo {
	inputOutputsStandardised := make([]InputOutputInfo, len(inputOutputs))
	for i, inputOutput := range inputOutputs {
		inputOutputsStandardised[i] = InputOutputInfo{
			Name:       inputOutput.Name,
			Dimensions: Shape(inputOutput.Dimensions),
		}
	}
	return inputOutputsStandardised
}
