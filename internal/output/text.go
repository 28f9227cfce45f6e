package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// textWriter renders Row records as an aligned table. Records that are not
// Rows are printed with %v.
type textWriter struct {
	tw     *tabwriter.Writer
	header bool
}

func newTextWriter(w io.Writer) *textWriter {
	return &textWriter{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (w *textWriter) Write(record any) error {
	row, ok := record.(Row)
	if !ok {
		_, err := fmt.Fprintf(w.tw, "%v\n", record)
		return err
	}
	if !w.header {
		w.header = true
		if _, err := fmt.Fprintln(w.tw, strings.Join(row.Header(), "\t")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w.tw, strings.Join(row.Cells(), "\t"))
	return err
}

func (w *textWriter) Close() error {
	return w.tw.Flush()
}
