// Package bed reads and writes BED intervals.
//
// Only the three mandatory columns are interpreted. Any further columns are
// kept verbatim in Interval.Extra, so parse then format round-trips a line.
package bed

import (
	"bytes"
	"strconv"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/biostream/locus"
	"github.com/pkg/errors"
)

// Interval is a half-open [Start, Stop) range on a chromosome.
type Interval struct {
	Chrom string
	Start int
	Stop  int
	Extra []string
}

// Len returns the length of the interval. Zero-length intervals represent
// insertions.
func (iv Interval) Len() int { return iv.Stop - iv.Start }

// Key returns the sort key of the interval.
func (iv Interval) Key() locus.Key {
	return locus.Key{Chrom: iv.Chrom, Start: iv.Start, Stop: iv.Stop}
}

// Equal compares every field of two intervals.
func (iv Interval) Equal(o Interval) bool {
	if iv.Chrom != o.Chrom || iv.Start != o.Start || iv.Stop != o.Stop || len(iv.Extra) != len(o.Extra) {
		return false
	}
	for i := range iv.Extra {
		if iv.Extra[i] != o.Extra[i] {
			return false
		}
	}
	return true
}

// String formats the interval as a BED line without the newline.
func (iv Interval) String() string {
	return string(iv.AppendText(nil))
}

// AppendText appends the BED line for iv, without a newline, to buf.
func (iv Interval) AppendText(buf []byte) []byte {
	buf = append(buf, iv.Chrom...)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(iv.Start), 10)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(iv.Stop), 10)
	for _, f := range iv.Extra {
		buf = append(buf, '\t')
		buf = append(buf, f...)
	}
	return buf
}

// isHeader reports whether line carries no interval: blank lines, comments,
// and UCSC track/browser lines.
func isHeader(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0 ||
		line[0] == '#' ||
		bytes.HasPrefix(line, []byte("track")) ||
		bytes.HasPrefix(line, []byte("browser"))
}

// ParseLine parses one tab-separated BED line.
func ParseLine(line []byte) (Interval, error) {
	line = bytes.TrimRight(line, "\r\n")
	var iv Interval
	fields := bytes.Split(line, []byte{'\t'})
	if len(fields) < 3 {
		return iv, errors.Errorf("expected at least 3 fields, found %d in %q", len(fields), line)
	}
	iv.Chrom = string(fields[0])
	if iv.Chrom == "" {
		return iv, errors.Errorf("empty chromosome in %q", line)
	}
	var err error
	if iv.Start, err = strconv.Atoi(gunsafe.BytesToString(fields[1])); err != nil {
		return iv, errors.Wrapf(err, "bad start in %q", line)
	}
	if iv.Stop, err = strconv.Atoi(gunsafe.BytesToString(fields[2])); err != nil {
		return iv, errors.Wrapf(err, "bad stop in %q", line)
	}
	if iv.Start < 0 || iv.Stop < iv.Start {
		return iv, errors.Errorf("invalid coordinates [%d, %d) in %q", iv.Start, iv.Stop, line)
	}
	if len(fields) > 3 {
		iv.Extra = make([]string, len(fields)-3)
		for i, f := range fields[3:] {
			iv.Extra[i] = string(f)
		}
	}
	return iv, nil
}
