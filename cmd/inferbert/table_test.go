package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTableSingleRecord(t *testing.T) {
	var buf bytes.Buffer
	err := renderTable(&buf, []sentimentRecord{{Sentence: "x", Sentiment: "positive"}})
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, strings.Repeat("-", 13), lines[1])
	assert.Equal(t, "x  positive  ", lines[2])
}

func TestRenderTableColumnWidths(t *testing.T) {
	var buf bytes.Buffer
	records := []sentimentRecord{
		{Sentence: "This movie is disgustingly good !", Sentiment: "positive"},
		{Sentence: "Director tried too much.", Sentiment: "negative"},
	}
	err := renderTable(&buf, records)
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)

	// widths follow the longest sentence (33) and sentiment (8)
	assert.Equal(t, strings.Repeat("-", 33+8+4), lines[1])
	assert.Equal(t, "This movie is disgustingly good !  positive  ", lines[2])
	assert.Equal(t, "Director tried too much.           negative  ", lines[3])
	assert.True(t, strings.HasPrefix(lines[0], "Sentence"))
	assert.Contains(t, lines[0], "Sentiment")
}

func TestSentimentLabel(t *testing.T) {
	assert.Equal(t, "positive", sentimentLabel([]float32{0.2, 0.8}))
	assert.Equal(t, "negative", sentimentLabel([]float32{0.9, 0.1}))
}

func TestSentimentLabelTie(t *testing.T) {
	// ties resolve to the first class
	assert.Equal(t, "negative", sentimentLabel([]float32{0.5, 0.5}))
}
