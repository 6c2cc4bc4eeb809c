package inferbert

import (
	"fmt"
	"sort"
	"strings"

	"github.com/axiomatic-ai/inferbert/pipelines"
	"github.com/axiomatic-ai/inferbert/util/fileutil"
)

// Preset is a named pretrained classification model retrievable from the
// huggingface hub: the repository holding the onnx export and tokenizer files,
// plus the class count the model is expected to have.
type Preset struct {
	Name         string
	Repo         string
	OnnxFilename string
	NumClasses   int
	MultiLabel   bool
}

var presetRegistry = map[string]Preset{
	"distilbert-sst2": {
		Name:       "distilbert-sst2",
		Repo:       "KnightsAnalytics/distilbert-base-uncased-finetuned-sst-2-english",
		NumClasses: 2,
	},
	"minilm-sst2": {
		Name:         "minilm-sst2",
		Repo:         "philschmid/MiniLM-L6-H384-uncased-sst2",
		OnnxFilename: "model.onnx",
		NumClasses:   2,
	},
	"roberta-emotions": {
		Name:         "roberta-emotions",
		Repo:         "KnightsAnalytics/roberta-base-go_emotions",
		OnnxFilename: "model.onnx",
		NumClasses:   28,
		MultiLabel:   true,
	},
}

// ResolvePreset returns the preset registered under name.
func ResolvePreset(name string) (Preset, error) {
	preset, ok := presetRegistry[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q, available presets: %s", name, strings.Join(PresetNames(), ", "))
	}
	return preset, nil
}

// PresetNames returns the names of all registered presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presetRegistry))
	for name := range presetRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPipelineFromPreset downloads the preset's model to modelsDir if it is not
// already there and creates a text classification pipeline for it. The model's
// class count is validated against the preset.
func (s *Session) NewPipelineFromPreset(preset Preset, pipelineName string, modelsDir string) (*pipelines.TextClassificationPipeline, error) {
	modelPath := fileutil.PathJoinSafe(modelsDir, strings.ReplaceAll(preset.Repo, "/", "_"))
	exists, err := fileutil.FileExists(modelPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		downloadOptions := NewDownloadOptions()
		downloadOptions.OnnxFilePath = preset.OnnxFilename
		modelPath, err = DownloadModel(preset.Repo, modelsDir, downloadOptions)
		if err != nil {
			return nil, err
		}
	}

	pipelineOptions := []TextClassificationOption{
		pipelines.WithExpectedClasses(preset.NumClasses),
	}
	if preset.MultiLabel {
		pipelineOptions = append(pipelineOptions, pipelines.WithMultiLabel(), pipelines.WithSigmoid())
	} else {
		pipelineOptions = append(pipelineOptions, pipelines.WithSingleLabel(), pipelines.WithSoftmax())
	}

	return s.NewTextClassificationPipeline(TextClassificationConfig{
		ModelPath:    modelPath,
		Name:         pipelineName,
		OnnxFilename: preset.OnnxFilename,
		Options:      pipelineOptions,
	})
}
