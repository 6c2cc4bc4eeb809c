package inferbert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/axiomatic-ai/inferbert/options"
)

func TestNewSessionBackendDispatch(t *testing.T) {
	t.Setenv(BackendEnvVar, "BOGUS")
	_, err := NewSession()
	assert.Error(t, err)

	t.Setenv(BackendEnvVar, "go")
	session, err := NewSession()
	assert.NoError(t, err)
	assert.NoError(t, session.Destroy())
}

func TestGoSessionLifecycle(t *testing.T) {
	session, err := NewGoSession()
	assert.NoError(t, err)

	_, err = session.GetTextClassificationPipeline("missing")
	assert.Error(t, err)

	assert.Empty(t, session.GetStats())
	assert.NoError(t, session.ClosePipeline("missing"))
	assert.NoError(t, session.Destroy())
}

func TestNewPipelineRequiresName(t *testing.T) {
	session, err := NewGoSession()
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, session.Destroy())
	}()

	_, err = session.NewTextClassificationPipeline(TextClassificationConfig{
		ModelPath: "/some/model",
	})
	assert.Error(t, err)
}

func TestOptionBackendMismatch(t *testing.T) {
	_, err := NewGoSession(options.WithTelemetry())
	assert.Error(t, err)

	_, err = NewGoSession(options.WithTPU())
	assert.Error(t, err)

	session, err := NewXLASession(options.WithTPU())
	assert.NoError(t, err)
	assert.True(t, session.options.GoMLXOptions.TPU)
	assert.NoError(t, session.Destroy())
}
