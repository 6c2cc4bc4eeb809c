package inferbert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePreset(t *testing.T) {
	preset, err := ResolvePreset("distilbert-sst2")
	assert.NoError(t, err)
	assert.Equal(t, "KnightsAnalytics/distilbert-base-uncased-finetuned-sst-2-english", preset.Repo)
	assert.Equal(t, 2, preset.NumClasses)
	assert.False(t, preset.MultiLabel)
}

func TestResolvePresetUnknown(t *testing.T) {
	_, err := ResolvePreset("nonexistent")
	assert.Error(t, err)
	assert.ErrorContains(t, err, "distilbert-sst2")
}

func TestPresetNames(t *testing.T) {
	names := PresetNames()
	assert.Equal(t, []string{"distilbert-sst2", "minilm-sst2", "roberta-emotions"}, names)
}

func TestNewDownloadOptions(t *testing.T) {
	opts := NewDownloadOptions()
	assert.Equal(t, "main", opts.Branch)
	assert.Equal(t, 5, opts.MaxRetries)
	assert.Equal(t, 5, opts.RetryInterval)
	assert.Equal(t, 5, opts.ConcurrentConnections)
}
