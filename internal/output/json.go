package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/nyka2002/stanbot/internal/domain"
)

// JSONWriter buffers results and emits them as one JSON document on Flush.
type JSONWriter struct {
	w       *bufio.Writer
	pretty  bool
	indent  string
	results []domain.ScrapeResult
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
	}
}

// Write buffers one result.
func (w *JSONWriter) Write(res domain.ScrapeResult) error {
	w.results = append(w.results, res)
	return nil
}

// Flush emits the buffered results. A single result is written as a plain
// object rather than a one-element array.
func (w *JSONWriter) Flush() error {
	var doc any = w.results
	if len(w.results) == 1 {
		doc = w.results[0]
	}

	var (
		data []byte
		err  error
	)
	if w.pretty {
		data, err = json.MarshalIndent(doc, "", w.indent)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONWriter) Close() error {
	return w.Flush()
}

// JSONLWriter streams one JSON object per result line.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w)}
}

// Write emits one result as a JSON line.
func (w *JSONLWriter) Write(res domain.ScrapeResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// Flush flushes the buffer.
func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.Flush()
}
