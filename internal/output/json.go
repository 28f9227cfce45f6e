package output

import (
	"encoding/json"
	"io"
)

// jsonWriter collects records and writes them as one JSON array.
type jsonWriter struct {
	out    io.Writer
	indent string
	items  []any
}

func (w *jsonWriter) Write(record any) error {
	w.items = append(w.items, record)
	return nil
}

func (w *jsonWriter) Close() error {
	items := w.items
	if items == nil {
		items = []any{}
	}
	enc := json.NewEncoder(w.out)
	enc.SetEscapeHTML(false)
	if w.indent != "" {
		enc.SetIndent("", w.indent)
	}
	return enc.Encode(items)
}

// jsonlWriter writes one JSON object per line as records arrive.
type jsonlWriter struct {
	enc *json.Encoder
}

func newJSONLWriter(w io.Writer) *jsonlWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &jsonlWriter{enc: enc}
}

func (w *jsonlWriter) Write(record any) error {
	return w.enc.Encode(record)
}

func (w *jsonlWriter) Close() error { return nil }
