package vcf

import (
	"io"

	"github.com/grailbio/base/tsv"
)

// Writer writes a header followed by records.
type Writer struct {
	out    io.Writer
	w      *tsv.Writer
	header *Header
	wrote  bool
}

// NewWriter returns a writer for records described by h. The header is
// written with the first record, or by Flush if there are none.
func NewWriter(w io.Writer, h *Header) *Writer {
	return &Writer{out: w, w: tsv.NewWriter(w), header: h}
}

func (w *Writer) writeHeader() error {
	if w.wrote {
		return nil
	}
	w.wrote = true
	return w.header.Write(w.out)
}

// Write writes one record.
func (w *Writer) Write(r *Record) error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	for _, c := range r.Columns() {
		w.w.WriteString(c)
	}
	return w.w.EndLine()
}

// Flush writes the header if needed and flushes buffered records.
func (w *Writer) Flush() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	return w.w.Flush()
}
