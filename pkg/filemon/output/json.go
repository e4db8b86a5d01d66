package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter formats output as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(withTotals(r))
}

// JSONLFormatter writes one compact JSON object per file, for jq and
// other stream processors.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	for _, file := range r.Files {
		if err := encoder.Encode(file); err != nil {
			return err
		}
	}
	return nil
}

// document is the shape shared by the JSON and YAML formatters.
type document struct {
	Result `yaml:",inline"`

	TotalFiles int   `json:"total_files" yaml:"total_files"`
	TotalSize  int64 `json:"total_size" yaml:"total_size"`
}

func withTotals(r *Result) document {
	return document{Result: *r, TotalFiles: len(r.Files), TotalSize: r.TotalSize()}
}

func init() {
	Register("json", func() Formatter { return &JSONFormatter{} })
	Register("jsonl", func() Formatter { return &JSONLFormatter{} })
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*JSONLFormatter)(nil)
)
