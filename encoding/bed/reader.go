package bed

import (
	"bufio"
	"io"

	"github.com/grailbio/biostream/locus"
	"github.com/pkg/errors"
)

const maxLineLen = 64 << 20

// Reader yields the intervals of a BED stream in file order.
//
//   r := bed.NewReader(in, path)
//   r.CheckSorted(order)
//   for r.Scan() {
//     iv := r.Record()
//   }
//   if err := r.Err(); err != nil { ... }
type Reader struct {
	name    string
	sc      *bufio.Scanner
	line    int
	rec     Interval
	err     error
	checker *locus.Checker
}

// NewReader returns a reader over r. name identifies the stream in errors.
func NewReader(r io.Reader, name string) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineLen)
	return &Reader{name: name, sc: sc}
}

// CheckSorted makes Scan fail with *locus.UnsortedError if the stream is not
// sorted under order.
func (r *Reader) CheckSorted(order *locus.Order) {
	r.checker = order.NewChecker(r.name)
}

// Name returns the stream name given to NewReader.
func (r *Reader) Name() string { return r.name }

// Scan reads the next interval. It returns false at the end of the stream or
// on error.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	for r.sc.Scan() {
		r.line++
		line := r.sc.Bytes()
		if isHeader(line) {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			r.err = errors.Wrapf(err, "%s:%d", r.name, r.line)
			return false
		}
		if r.checker != nil {
			if err := r.checker.Check(rec.Chrom, rec.Start); err != nil {
				r.err = err
				return false
			}
		}
		r.rec = rec
		return true
	}
	if err := r.sc.Err(); err != nil {
		r.err = errors.Wrapf(err, "%s:%d", r.name, r.line)
	}
	return false
}

// Record returns the interval read by the last successful Scan.
func (r *Reader) Record() Interval { return r.rec }

// Err returns the first error encountered by Scan.
func (r *Reader) Err() error { return r.err }
