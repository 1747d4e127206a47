package vcf

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/grailbio/biostream/locus"
	"github.com/pkg/errors"
)

const maxLineLen = 256 << 20

// Reader yields the records of a VCF stream. The header is read by
// NewReader.
type Reader struct {
	name    string
	source  int
	sc      *bufio.Scanner
	header  *Header
	line    int
	rec     *Record
	err     error
	checker *locus.Checker
	// pending holds the first data line when the header has no #CHROM line.
	pending []byte
}

// NewReader reads the header from r. name identifies the stream in errors;
// source is stored in Record.Source.
func NewReader(r io.Reader, name string, source int) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineLen)
	vr := &Reader{name: name, source: source, sc: sc, header: &Header{}}
	for sc.Scan() {
		vr.line++
		line := sc.Text()
		if strings.HasPrefix(line, "##") {
			m, err := ParseMeta(line)
			if err != nil {
				return nil, errors.Wrapf(err, "%s:%d", name, vr.line)
			}
			vr.header.Meta = append(vr.header.Meta, m)
			continue
		}
		if strings.HasPrefix(line, "#") {
			cols := strings.Split(strings.TrimRight(line, "\r"), "\t")
			if len(cols) < 8 {
				return nil, errors.Errorf("%s:%d: malformed #CHROM line", name, vr.line)
			}
			if len(cols) > 9 {
				vr.header.Samples = cols[9:]
			}
			return vr, nil
		}
		if len(strings.TrimSpace(line)) > 0 {
			vr.pending = []byte(line)
			vr.line--
			return vr, nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	return vr, nil
}

// Header returns the stream header.
func (r *Reader) Header() *Header { return r.header }

// Name returns the stream name.
func (r *Reader) Name() string { return r.name }

// Line returns the line number of the last record read.
func (r *Reader) Line() int { return r.line }

// CheckSorted makes Scan fail with *locus.UnsortedError if the stream is not
// sorted under order. The header's contigs are declared first, so they order
// the chromosomes when order ranks by observation.
func (r *Reader) CheckSorted(order *locus.Order) {
	// Contigs outside an explicit order only fail if records use them.
	order.Declare(r.header.Contigs())
	r.checker = order.NewChecker(r.name)
}

func (r *Reader) next() ([]byte, bool) {
	if r.pending != nil {
		line := r.pending
		r.pending = nil
		r.line++
		return line, true
	}
	if !r.sc.Scan() {
		return nil, false
	}
	r.line++
	return r.sc.Bytes(), true
}

// Scan reads the next record.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	for {
		line, ok := r.next()
		if !ok {
			break
		}
		if len(bytes.TrimSpace(line)) == 0 || line[0] == '#' {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			r.err = errors.Wrapf(err, "%s:%d", r.name, r.line)
			return false
		}
		if len(r.header.Samples) > 0 && len(rec.Samples) != len(r.header.Samples) {
			r.err = errors.Errorf("%s:%d: %d sample columns, header declares %d", r.name, r.line, len(rec.Samples), len(r.header.Samples))
			return false
		}
		if r.checker != nil {
			if err := r.checker.Check(rec.Chrom, rec.Pos); err != nil {
				r.err = err
				return false
			}
		}
		rec.Source = r.source
		r.rec = rec
		return true
	}
	if err := r.sc.Err(); err != nil {
		r.err = errors.Wrapf(err, "%s:%d", r.name, r.line)
	}
	return false
}

// Record returns the record read by the last successful Scan. The record is
// not reused.
func (r *Reader) Record() *Record { return r.rec }

// Err returns the first error encountered by Scan.
func (r *Reader) Err() error { return r.err }
