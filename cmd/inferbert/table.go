package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/axiomatic-ai/inferbert/util/vectorutil"
)

type sentimentRecord struct {
	Sentence  string
	Sentiment string
}

// renderTable writes records as a two column table. Column widths follow the
// longest value in each column, each field is left justified and padded with
// two trailing spaces, and a dashed rule separates the header from the rows.
func renderTable(w io.Writer, records []sentimentRecord) error {
	sentenceWidth := 0
	sentimentWidth := 0
	for _, record := range records {
		if len(record.Sentence) > sentenceWidth {
			sentenceWidth = len(record.Sentence)
		}
		if len(record.Sentiment) > sentimentWidth {
			sentimentWidth = len(record.Sentiment)
		}
	}

	if _, err := fmt.Fprintf(w, "%-*s%-*s\n", sentenceWidth+2, "Sentence", sentimentWidth+2, "Sentiment"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", sentenceWidth+sentimentWidth+4)); err != nil {
		return err
	}
	for _, record := range records {
		if _, err := fmt.Fprintf(w, "%-*s%-*s\n", sentenceWidth+2, record.Sentence, sentimentWidth+2, record.Sentiment); err != nil {
			return err
		}
	}
	return nil
}

// sentimentLabel maps a two class probability vector to a sentiment string.
// Index 1 is the positive class. Ties resolve to the lowest index.
func sentimentLabel(probabilities []float32) string {
	index, _, err := vectorutil.ArgMax(probabilities)
	if err != nil || index != 1 {
		return "negative"
	}
	return "positive"
}
