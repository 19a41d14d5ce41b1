package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nyka2002/stanbot/internal/domain"
)

func sampleResult(source string, saved int) domain.ScrapeResult {
	return domain.ScrapeResult{
		Success:         true,
		Source:          source,
		ListingsScraped: saved + 2,
		ListingsSaved:   saved,
		DuplicatesFound: 2,
		Duration:        3 * time.Second,
		PagesProcessed:  1,
	}
}

// --- factory ---

func TestNewWriter(t *testing.T) {
	tests := []struct {
		format  Format
		want    string
		wantErr bool
	}{
		{FormatJSON, "*output.JSONWriter", false},
		{FormatJSONL, "*output.JSONLWriter", false},
		{FormatYAML, "*output.YAMLWriter", false},
		{Format("xml"), "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			w, err := NewWriter(&bytes.Buffer{}, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unsupported format")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWriter() error = %v", err)
			}
			if got := typeName(w); got != tt.want {
				t.Errorf("writer type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(w Writer) string {
	switch w.(type) {
	case *JSONWriter:
		return "*output.JSONWriter"
	case *JSONLWriter:
		return "*output.JSONLWriter"
	case *YAMLWriter:
		return "*output.YAMLWriter"
	default:
		return "unknown"
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("YAML"); err != nil || f != FormatYAML {
		t.Errorf("ParseFormat(YAML) = (%v, %v)", f, err)
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("ParseFormat(csv) should fail")
	}
}

// --- JSON ---

func TestJSONWriter_SingleResultIsObject(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf, false, "")

	if err := w.Write(sampleResult("njuskalo", 5)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var res domain.ScrapeResult
	if err := json.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatalf("output is not a single object: %v", err)
	}
	if res.Source != "njuskalo" || res.ListingsSaved != 5 {
		t.Errorf("decoded = %+v", res)
	}
}

func TestJSONWriter_MultipleResultsAreArray(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONWriter(buf, true, "  ")

	for _, src := range []string{"njuskalo", "index", "oglasnik"} {
		if err := w.Write(sampleResult(src, 1)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var res []domain.ScrapeResult
	if err := json.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatalf("output is not an array: %v", err)
	}
	if len(res) != 3 || res[1].Source != "index" {
		t.Errorf("decoded = %+v", res)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("pretty output should be indented")
	}
}

// --- JSONL ---

func TestJSONLWriter_OneLinePerResult(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewJSONLWriter(buf)

	for _, src := range []string{"njuskalo", "index"} {
		if err := w.Write(sampleResult(src, 1)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var res domain.ScrapeResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}

// --- YAML ---

func TestYAMLWriter_RoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewYAMLWriter(buf)

	if err := w.Write(sampleResult("oglasnik", 4)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Write(sampleResult("index", 2)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var res []domain.ScrapeResult
	if err := yaml.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatalf("output is not a YAML sequence: %v", err)
	}
	if len(res) != 2 || res[0].Source != "oglasnik" || res[1].ListingsSaved != 2 {
		t.Errorf("decoded = %+v", res)
	}
}
