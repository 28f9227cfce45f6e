package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// yamlWriter collects records and writes them as one YAML sequence.
type yamlWriter struct {
	out   io.Writer
	items []any
}

func (w *yamlWriter) Write(record any) error {
	w.items = append(w.items, record)
	return nil
}

func (w *yamlWriter) Close() error {
	items := w.items
	if items == nil {
		items = []any{}
	}
	enc := yaml.NewEncoder(w.out)
	enc.SetIndent(2)
	if err := enc.Encode(items); err != nil {
		return err
	}
	return enc.Close()
}
