package backends

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx"

	"github.com/axiomatic-ai/inferbert/options"
	"github.com/axiomatic-ai/inferbert/util/fileutil"
)

type GoMLXModel struct {
	Backend   backends.Backend
	OnnxModel *onnx.Model
	Ctx       *context.Context // ctx with the model's weights.
	Exec      *context.Exec    // exec is used to execute the model with a context.
	Call      func(ctx *context.Context, inputs []*graph.Node) []*graph.Node
	Destroy   func()
}

func loadExternalData(path string, model *onnx.Model) error {
	externalMap := map[string][]byte{}
	// load external data from the same dir as the base model ONNX file
	for _, proto := range model.Proto.Graph.Initializer {
		// proto.DataLocation is 1 if data is external, 0 otherwise
		if proto.DataLocation == 1 {
			externalPath := ""
			offset := int64(0)
			length := int64(-1)

			for _, entry := range proto.ExternalData {
				switch entry.Key {
				case "location":
					externalPath = entry.Value
				case "offset":
					parsedOffset, err := strconv.ParseInt(entry.Value, 10, 64)
					if err != nil {
						return fmt.Errorf("parsing offset failed with err %w", err)
					}
					offset = parsedOffset
				case "length":
					parsedLength, err := strconv.ParseInt(entry.Value, 10, 64)
					if err != nil {
						return fmt.Errorf("parsing length failed with err %w", err)
					}
					length = parsedLength
				}
			}

			weightsPath := fileutil.PathJoinSafe(path, externalPath)

			if _, ok := externalMap[externalPath]; !ok {
				bytes, err := fileutil.ReadFileBytes(weightsPath)
				if err != nil {
					return err
				}
				externalMap[externalPath] = bytes
			}

			fullBytes := externalMap[externalPath]
			end := int64(len(fullBytes))
			if length >= 0 && offset+length <= int64(len(fullBytes)) {
				end = offset + length
			}
			proto.RawData = fullBytes[offset:end]
		}
	}
	return nil
}

func createGoMLXModelBackend(model *Model, opts *options.Options) error {
	modelParsed, err := onnx.Parse(model.OnnxBytes)
	if err != nil {
		return err
	}

	inputs, outputs := loadInputOutputMetaGoMLX(modelParsed)
	outputNames := GetNames(outputs)

	if err = loadExternalData(model.Path, modelParsed); err != nil {
		return err
	}

	ctx := context.New()
	// Mark it to reuse variables: it will be an error to create a new variable.
	ctx = ctx.Reuse()

	// Read variables from the ONNX model.
	err = modelParsed.VariablesToContext(ctx)
	if err != nil {
		return err
	}

	config := "go"
	if opts.GoMLXOptions.TPU {
		config = "xla:tpu"
	} else if opts.GoMLXOptions.Cuda {
		config = "xla:cuda"
	} else if opts.GoMLXOptions.XLA {
		config = "xla:cpu"
	}

	backend, backendErr := backends.NewWithConfig(config)
	if backendErr != nil {
		return backendErr
	}

	callFunc := func(ctx *context.Context, graphInputs []*graph.Node) []*graph.Node {
		inputsMap := map[string]*graph.Node{}
		for i, inputMeta := range model.InputsMeta {
			inputsMap[inputMeta.Name] = graphInputs[i]
		}
		return modelParsed.CallGraph(ctx, graphInputs[0].Graph(), inputsMap, outputNames...)
	}

	exec, contextErr := context.NewExec(backend, ctx, callFunc)
	if contextErr != nil {
		return contextErr
	}
	exec.SetMaxCache(-1)

	model.GoMLXModel = &GoMLXModel{
		Backend:   backend,
		OnnxModel: modelParsed,
		Ctx:       ctx,
		Exec:      exec,
		Call:      callFunc,
		Destroy: func() {
			exec.Finalize()
			ctx.Finalize()
			backend.Finalize()
		},
	}
	model.InputsMeta = inputs
	model.OutputsMeta = outputs

	model.OnnxBytes = nil
	return nil
}

func loadInputOutputMetaGoMLX(model *onnx.Model) ([]InputOutputInfo, []InputOutputInfo) {
	var inputs, outputs []InputOutputInfo

	for i, name := range model.InputsNames {
		shape := model.InputsShapes[i]
		dimensions := make([]int64, len(shape.Dimensions))
		for j, y := range shape.Dimensions {
			dimensions[j] = int64(y)
		}
		inputs = append(inputs, InputOutputInfo{
			Name:       name,
			Dimensions: dimensions,
		})
	}
	for i, name := range model.OutputsNames {
		shape := model.OutputsShapes[i]
		dimensions := make([]int64, len(shape.Dimensions))
		for j, y := range shape.Dimensions {
			dimensions[j] = int64(y)
		}
		outputs = append(outputs, InputOutputInfo{
			Name:       name,
			Dimensions: dimensions,
		})
	}
	return inputs, outputs
}

func createInputTensorsGoMLX(batch *PipelineBatch, model *Model) error {
	batchSize := batch.Size
	maxSeqLength := batch.MaxSequenceLength
	total := batchSize * maxSeqLength

	inputTensors := make([]*tensors.Tensor, len(model.InputsMeta))
	paddingMasks := make([][]bool, batchSize)

	for mi, meta := range model.InputsMeta {
		backing := make([]int64, total)
		idx := 0
		switch meta.Name {
		case "input_ids":
			for bi, inp := range batch.Input {
				seqLen := len(inp.TokenIDs)
				maskRow := make([]bool, maxSeqLength)
				for pos := range maxSeqLength {
					if pos < seqLen {
						backing[idx] = int64(inp.TokenIDs[pos])
						maskRow[pos] = true
					} else {
						backing[idx] = model.PadToken
					}
					idx++
				}
				paddingMasks[bi] = maskRow
			}
		case "token_type_ids":
			for _, inp := range batch.Input {
				seqLen := len(inp.TypeIDs)
				for pos := range maxSeqLength {
					if pos < seqLen {
						backing[idx] = int64(inp.TypeIDs[pos])
					}
					idx++
				}
			}
		case "attention_mask":
			for _, inp := range batch.Input {
				seqLen := len(inp.AttentionMask)
				for pos := range maxSeqLength {
					if pos < seqLen {
						backing[idx] = int64(inp.AttentionMask[pos])
					}
					idx++
				}
			}
		default:
			return fmt.Errorf("unknown input meta name %s", meta.Name)
		}
		inputTensors[mi] = tensors.FromFlatDataAndDimensions(backing, batchSize, maxSeqLength)
	}

	batch.InputValues = inputTensors
	batch.PaddingMask = paddingMasks
	batch.DestroyInputs = func() error {
		var err error
		for _, t := range inputTensors {
			err = errors.Join(err, t.FinalizeAll())
		}
		return err
	}
	return nil
}

func runGoMLXSessionOnBatch(batch *PipelineBatch, p *BasePipeline) error {
	outputTensors, err := p.Model.GoMLXModel.Exec.Exec(batch.InputValues.([]*tensors.Tensor))
	if err != nil {
		return err
	}
	defer func() {
		for _, t := range outputTensors {
			err = errors.Join(err, t.FinalizeAll())
		}
	}()

	convertedOutput := make([]any, len(outputTensors))
	for i, t := range outputTensors {
		var rawOutput []float32
		err = tensors.ConstFlatData(t, func(flat []float32) {
			rawOutput = flat
		})
		if err != nil {
			return err
		}
		convertedOutput[i] = ReshapeOutput(rawOutput, p.Model.OutputsMeta[i], batch.Size)
	}

	batch.OutputValues = convertedOutput
	return err
}
