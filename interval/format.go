package interval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/biostream/encoding/bed"
)

type tokenKind int

const (
	// tokIntersection is the overlap of A and B.
	tokIntersection tokenKind = iota
	// tokWhole is every column of one side.
	tokWhole
	// tokField is a single column of one side.
	tokField
)

type token struct {
	kind  tokenKind
	side  int // 0 for A, 1 for B
	field int // column index for tokField
}

// Formatter writes matched pairs as columns described by a format string.
// The format is a whitespace-separated list of tokens:
//
//   I         chrom, start and stop of the intersection of A and B
//   A, B      every column of A or B
//   A3,5-7    selected columns of A (or B); 0, 1 and 2 are chrom, start and
//             stop, 3 onwards are the extra columns
type Formatter struct {
	tokens []token
}

// Formats for the fixed output options of intersect.
const (
	FormatA    = "A"
	FormatBoth = "A B"
	FormatFull = "I A B"
)

// ParseFormat parses a format string.
func ParseFormat(spec string) (*Formatter, error) {
	f := &Formatter{}
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return nil, errors.E(errors.Invalid, "empty output format")
	}
	for _, tok := range fields {
		switch {
		case tok == "I":
			f.tokens = append(f.tokens, token{kind: tokIntersection})
			continue
		case tok[0] != 'A' && tok[0] != 'B':
			return nil, errors.E(errors.Invalid, fmt.Sprintf("output format: unknown token %q", tok))
		}
		side := 0
		if tok[0] == 'B' {
			side = 1
		}
		if len(tok) == 1 {
			f.tokens = append(f.tokens, token{kind: tokWhole, side: side})
			continue
		}
		for _, r := range strings.Split(tok[1:], ",") {
			lo, hi, err := parseRange(r)
			if err != nil {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("output format: token %q", tok), err)
			}
			for i := lo; i <= hi; i++ {
				f.tokens = append(f.tokens, token{kind: tokField, side: side, field: i})
			}
		}
	}
	return f, nil
}

func parseRange(s string) (lo, hi int, err error) {
	dash := strings.IndexByte(s, '-')
	if dash < 0 {
		lo, err = strconv.Atoi(s)
		return lo, lo, err
	}
	if lo, err = strconv.Atoi(s[:dash]); err != nil {
		return 0, 0, err
	}
	if hi, err = strconv.Atoi(s[dash+1:]); err != nil {
		return 0, 0, err
	}
	if lo < 0 || hi < lo {
		return 0, 0, fmt.Errorf("bad column range %s", s)
	}
	return lo, hi, nil
}

// UsesB reports whether output depends on the B interval, that is, whether a
// line is written per matched pair rather than per matched A.
func (f *Formatter) UsesB() bool {
	for _, t := range f.tokens {
		if t.kind == tokIntersection || t.side == 1 {
			return true
		}
	}
	return false
}

// Write writes one output line for the pair.
func (f *Formatter) Write(w *tsv.Writer, a, b bed.Interval) error {
	for _, t := range f.tokens {
		iv := a
		if t.side == 1 {
			iv = b
		}
		switch t.kind {
		case tokIntersection:
			start, stop := a.Start, a.Stop
			if b.Start > start {
				start = b.Start
			}
			if b.Stop < stop {
				stop = b.Stop
			}
			w.WriteString(a.Chrom)
			w.WriteInt64(int64(start))
			w.WriteInt64(int64(stop))
		case tokWhole:
			bed.WriteColumns(w, iv)
		case tokField:
			switch t.field {
			case 0:
				w.WriteString(iv.Chrom)
			case 1:
				w.WriteInt64(int64(iv.Start))
			case 2:
				w.WriteInt64(int64(iv.Stop))
			default:
				i := t.field - 3
				if i >= len(iv.Extra) {
					return errors.E(errors.Invalid, fmt.Sprintf("output format: column %d out of range for %s", t.field, iv))
				}
				w.WriteString(iv.Extra[i])
			}
		}
	}
	return w.EndLine()
}

// Output is a Collector that writes matched output, and optionally the
// unmatched intervals of either side, as BED text.
type Output struct {
	w      *tsv.Writer
	format *Formatter
	// UnmatchedA and UnmatchedB, if non-nil, receive intervals that matched
	// nothing on the other side.
	UnmatchedA, UnmatchedB *bed.Writer
}

// NewOutput returns an Output writing matches to w in the given format.
func NewOutput(w *tsv.Writer, format *Formatter) *Output {
	return &Output{w: w, format: format}
}

// Hit implements Collector.
func (o *Output) Hit(a, b bed.Interval) error {
	if !o.format.UsesB() {
		return nil
	}
	return o.format.Write(o.w, a, b)
}

// EndA implements Collector.
func (o *Output) EndA(a bed.Interval, hits int) error {
	if hits == 0 {
		if o.UnmatchedA != nil {
			return o.UnmatchedA.Write(a)
		}
		return nil
	}
	if o.format.UsesB() {
		return nil
	}
	return o.format.Write(o.w, a, bed.Interval{})
}

// MissB implements Collector.
func (o *Output) MissB(b bed.Interval) error {
	if o.UnmatchedB != nil {
		return o.UnmatchedB.Write(b)
	}
	return nil
}
