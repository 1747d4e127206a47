package vcf

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/biostream/locus"
	"github.com/pkg/errors"
)

// Missing is the VCF missing-value marker.
const Missing = "."

// Field is one INFO entry. A flag has no values.
type Field struct {
	Key    string
	Values []string
	Flag   bool
}

// Value returns the comma-joined value of the field.
func (f Field) Value() string { return strings.Join(f.Values, ",") }

// SampleData holds one sample's values, aligned to Record.Format. A nil
// SampleData means the sample has no data at the site and is written as ".";
// this is distinct from an explicit "./." genotype.
type SampleData []string

// Get returns the value at index i, or Missing when the data is absent or
// shorter than the format.
func (s SampleData) Get(i int) string {
	if i < 0 || i >= len(s) || s[i] == "" {
		return Missing
	}
	return s[i]
}

// Record is one VCF data line.
type Record struct {
	Chrom string
	// Pos is 1-based.
	Pos     int
	ID      []string
	Ref     string
	Alt     []string
	Qual    float64
	HasQual bool
	Filter  []string
	Info    []Field
	Format  []string
	Samples []SampleData
	// Source is the index of the input that produced the record.
	Source int
}

// Key returns the sort key: the 0-based span of the reference allele.
func (r *Record) Key() locus.Key {
	return locus.Key{Chrom: r.Chrom, Start: r.Pos - 1, Stop: r.Pos - 1 + len(r.Ref)}
}

// InfoField returns the INFO entry with the given key.
func (r *Record) InfoField(key string) (Field, bool) {
	for _, f := range r.Info {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// SetInfo replaces or appends an INFO entry.
func (r *Record) SetInfo(f Field) {
	for i := range r.Info {
		if r.Info[i].Key == f.Key {
			r.Info[i] = f
			return
		}
	}
	r.Info = append(r.Info, f)
}

// FormatIndex returns the position of key in the FORMAT column, or -1.
func (r *Record) FormatIndex(key string) int {
	for i, k := range r.Format {
		if k == key {
			return i
		}
	}
	return -1
}

// SampleValue returns the value of key for sample i, or Missing.
func (r *Record) SampleValue(i int, key string) string {
	if i < 0 || i >= len(r.Samples) {
		return Missing
	}
	return r.Samples[i].Get(r.FormatIndex(key))
}

// HasFilter reports whether filter is set on the record.
func (r *Record) HasFilter(filter string) bool {
	for _, f := range r.Filter {
		if f == filter {
			return true
		}
	}
	return false
}

// AddFilter adds a filter. Adding PASS to a filtered record is a no-op;
// adding anything else removes PASS.
func (r *Record) AddFilter(filter string) {
	if filter == "PASS" {
		if len(r.Filter) == 0 {
			r.Filter = []string{"PASS"}
		}
		return
	}
	if r.HasFilter(filter) {
		return
	}
	kept := r.Filter[:0]
	for _, f := range r.Filter {
		if f != "PASS" {
			kept = append(kept, f)
		}
	}
	r.Filter = append(kept, filter)
}

// IsFiltered reports whether a filter value marks failure: neither PASS nor
// missing.
func IsFiltered(ft string) bool {
	return ft != "" && ft != Missing && ft != "PASS"
}

func splitOrNil(s string, sep string) []string {
	if s == "" || s == Missing {
		return nil
	}
	return strings.Split(s, sep)
}

// ParseRecord parses one tab-separated data line.
func ParseRecord(line []byte) (*Record, error) {
	line = bytes.TrimRight(line, "\r\n")
	cols := strings.Split(string(line), "\t")
	if len(cols) < 8 {
		return nil, errors.Errorf("expected at least 8 columns, found %d", len(cols))
	}
	r := &Record{Chrom: cols[0], Ref: cols[3]}
	var err error
	if r.Pos, err = strconv.Atoi(cols[1]); err != nil {
		return nil, errors.Wrapf(err, "bad position %q", cols[1])
	}
	if r.Pos < 1 {
		return nil, errors.Errorf("bad position %d", r.Pos)
	}
	r.ID = splitOrNil(cols[2], ";")
	r.Alt = splitOrNil(cols[4], ",")
	if cols[5] != Missing {
		if r.Qual, err = strconv.ParseFloat(cols[5], 64); err != nil {
			return nil, errors.Wrapf(err, "bad quality %q", cols[5])
		}
		r.HasQual = true
	}
	r.Filter = splitOrNil(cols[6], ";")
	for _, kv := range splitOrNil(cols[7], ";") {
		if eq := strings.IndexByte(kv, '='); eq >= 0 {
			r.Info = append(r.Info, Field{Key: kv[:eq], Values: strings.Split(kv[eq+1:], ",")})
		} else {
			r.Info = append(r.Info, Field{Key: kv, Flag: true})
		}
	}
	if len(cols) > 8 {
		r.Format = splitOrNil(cols[8], ":")
		r.Samples = make([]SampleData, len(cols)-9)
		for i, s := range cols[9:] {
			if s != Missing && s != "" {
				r.Samples[i] = strings.Split(s, ":")
			}
		}
	}
	return r, nil
}

// FormatQual formats a quality value the way it is written to VCF.
func FormatQual(q float64) string {
	if math.IsInf(q, 0) || math.IsNaN(q) {
		return Missing
	}
	return strconv.FormatFloat(q, 'g', -1, 64)
}

func joinOrMissing(vals []string, sep string) string {
	if len(vals) == 0 {
		return Missing
	}
	return strings.Join(vals, sep)
}

// Columns returns the text of each column of the record.
func (r *Record) Columns() []string {
	cols := make([]string, 0, 9+len(r.Samples))
	qual := Missing
	if r.HasQual {
		qual = FormatQual(r.Qual)
	}
	info := make([]string, len(r.Info))
	for i, f := range r.Info {
		if f.Flag {
			info[i] = f.Key
		} else {
			info[i] = f.Key + "=" + f.Value()
		}
	}
	cols = append(cols,
		r.Chrom,
		strconv.Itoa(r.Pos),
		joinOrMissing(r.ID, ";"),
		r.Ref,
		joinOrMissing(r.Alt, ","),
		qual,
		joinOrMissing(r.Filter, ";"),
		joinOrMissing(info, ";"))
	if len(r.Format) > 0 || len(r.Samples) > 0 {
		cols = append(cols, joinOrMissing(r.Format, ":"))
		for _, s := range r.Samples {
			cols = append(cols, joinOrMissing(s, ":"))
		}
	}
	return cols
}

// String formats the record as a VCF line without the newline.
func (r *Record) String() string {
	return strings.Join(r.Columns(), "\t")
}
