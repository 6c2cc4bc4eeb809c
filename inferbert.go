package inferbert

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/axiomatic-ai/inferbert/backends"
	"github.com/axiomatic-ai/inferbert/options"
	"github.com/axiomatic-ai/inferbert/pipelines"
)

// BackendEnvVar is the environment variable that selects the computation
// backend used by NewSession. Recognized values are ORT, GO and XLA.
const BackendEnvVar = "INFERBERT_BACKEND"

// Session allows for the creation of new pipelines and holds the pipelines already created.
type Session struct {
	textClassificationPipelines pipelineMap[*pipelines.TextClassificationPipeline]
	models                      map[string]*backends.Model
	options                     *options.Options
	environmentDestroy          func() error
}

type pipelineMap[T backends.Pipeline] map[string]T

func (m pipelineMap[T]) GetStats() []string {
	var stats []string
	for _, p := range m {
		stats = append(stats, p.GetStats()...)
	}
	return stats
}

func newSession(backend string, opts ...options.WithOption) (*Session, error) {
	parsedOptions := options.Defaults()
	parsedOptions.Backend = backend
	if backend == "XLA" {
		parsedOptions.GoMLXOptions.XLA = true
	}
	for _, option := range opts {
		if err := option(parsedOptions); err != nil {
			return nil, err
		}
	}

	session := &Session{
		textClassificationPipelines: map[string]*pipelines.TextClassificationPipeline{},
		models:                      map[string]*backends.Model{},
		options:                     parsedOptions,
		environmentDestroy: func() error {
			return nil
		},
	}
	return session, nil
}

// NewSession creates a session with the backend selected by the
// INFERBERT_BACKEND environment variable. The GO backend is the default.
func NewSession(opts ...options.WithOption) (*Session, error) {
	backend := strings.ToUpper(strings.TrimSpace(os.Getenv(BackendEnvVar)))
	switch backend {
	case "ORT":
		return NewORTSession(opts...)
	case "XLA":
		return NewXLASession(opts...)
	case "", "GO":
		return NewGoSession(opts...)
	default:
		return nil, fmt.Errorf("unrecognized backend %q in %s, expected ORT, GO or XLA", backend, BackendEnvVar)
	}
}

// TextClassificationConfig is the configuration for a text classification pipeline.
type TextClassificationConfig = backends.PipelineConfig[*pipelines.TextClassificationPipeline]

// TextClassificationOption is an option for a text classification pipeline.
type TextClassificationOption = backends.PipelineOption[*pipelines.TextClassificationPipeline]

// NewTextClassificationPipeline creates a text classification pipeline and stores
// it in the session so that all created pipelines can be destroyed with
// session.Destroy() at once. The model is loaded once per model path and shared
// between pipelines.
func (s *Session) NewTextClassificationPipeline(config TextClassificationConfig) (*pipelines.TextClassificationPipeline, error) {
	if config.Name == "" {
		return nil, errors.New("a name for the pipeline is required")
	}
	if _, exists := s.textClassificationPipelines[config.Name]; exists {
		return nil, fmt.Errorf("pipeline %s has already been initialised", config.Name)
	}

	model, ok := s.models[config.ModelPath]
	if !ok {
		loadedModel, err := backends.LoadModel(config.ModelPath, config.OnnxFilename, s.options)
		if err != nil {
			return nil, err
		}
		s.models[config.ModelPath] = loadedModel
		model = loadedModel
	}

	pipeline, err := pipelines.NewTextClassificationPipeline(config, s.options, model)
	if err != nil {
		return nil, err
	}
	s.textClassificationPipelines[config.Name] = pipeline
	model.Pipelines[config.Name] = pipeline
	return pipeline, nil
}

// GetTextClassificationPipeline returns a previously created pipeline by name.
func (s *Session) GetTextClassificationPipeline(name string) (*pipelines.TextClassificationPipeline, error) {
	p, ok := s.textClassificationPipelines[name]
	if !ok {
		return nil, &pipelineNotFoundError{pipelineName: name}
	}
	return p, nil
}

// ClosePipeline removes a pipeline from the session, destroying its model if
// no other pipeline uses it.
func (s *Session) ClosePipeline(name string) error {
	p, ok := s.textClassificationPipelines[name]
	if !ok {
		return nil
	}
	model := p.Model
	delete(s.textClassificationPipelines, name)
	delete(model.Pipelines, name)
	if len(model.Pipelines) == 0 {
		delete(s.models, model.Path)
		return model.Destroy()
	}
	return nil
}

type pipelineNotFoundError struct {
	pipelineName string
}

func (e *pipelineNotFoundError) Error() string {
	return fmt.Sprintf("pipeline with name %s not found", e.pipelineName)
}

// GetStats returns runtime statistics for all initialized pipelines for profiling
// purposes. We currently record for each pipeline:
// the total runtime of the tokenization step
// the number of batch calls to the tokenization step
// the average time per tokenization batch call
// the total runtime of the inference step
// the number of batch calls to the inference step
// the average time per inference batch call.
func (s *Session) GetStats() []string {
	return s.textClassificationPipelines.GetStats()
}

// Destroy deletes the session, the backend environment and all initialized
// pipelines, freeing memory. A session should be destroyed when not needed
// any more, preferably with a defer() call.
func (s *Session) Destroy() error {
	var err error
	for _, model := range s.models {
		err = errors.Join(err, model.Destroy())
	}
	s.models = nil
	s.textClassificationPipelines = nil

	if s.options != nil {
		err = errors.Join(err, s.options.Destroy())
		s.options = nil
	}

	err = errors.Join(err, s.environmentDestroy())
	return err
}
