package bed

import (
	"io"

	"github.com/grailbio/base/tsv"
)

// Writer writes intervals as BED lines.
type Writer struct {
	w *tsv.Writer
}

// NewWriter returns a writer that buffers output to w. Flush must be called
// once all intervals are written.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: tsv.NewWriter(w)}
}

// Write writes one interval.
func (w *Writer) Write(iv Interval) error {
	WriteColumns(w.w, iv)
	return w.w.EndLine()
}

// Flush flushes buffered output.
func (w *Writer) Flush() error { return w.w.Flush() }

// WriteColumns writes the columns of iv to the current line of w.
func WriteColumns(w *tsv.Writer, iv Interval) {
	w.WriteString(iv.Chrom)
	w.WriteInt64(int64(iv.Start))
	w.WriteInt64(int64(iv.Stop))
	for _, f := range iv.Extra {
		w.WriteString(f)
	}
}
