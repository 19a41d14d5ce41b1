package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/nyka2002/stanbot/internal/domain"
)

// YAMLWriter buffers results and emits them as one YAML document on Flush.
type YAMLWriter struct {
	w       *bufio.Writer
	results []domain.ScrapeResult
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{w: bufio.NewWriter(w)}
}

// Write buffers one result.
func (w *YAMLWriter) Write(res domain.ScrapeResult) error {
	w.results = append(w.results, res)
	return nil
}

// Flush emits the buffered results. A single result is written as a plain
// mapping rather than a one-element sequence.
func (w *YAMLWriter) Flush() error {
	enc := yaml.NewEncoder(w.w)
	enc.SetIndent(2)

	var doc any = w.results
	if len(w.results) == 1 {
		doc = w.results[0]
	}
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes and closes the writer.
func (w *YAMLWriter) Close() error {
	return w.Flush()
}
