// Package vcffilter implements per-record VCF filters: clearing low-depth
// sample data and flagging sites where too many samples fail their own
// filter.
package vcffilter

import (
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biostream/encoding/vcf"
)

// Filter rewrites records of a stream.
type Filter interface {
	// UpdateHeader adds the header lines the filter needs.
	UpdateHeader(h *vcf.Header)
	// Apply rewrites rec in place, read at the given line, and reports
	// whether to keep it.
	Apply(rec *vcf.Record, line int) bool
}

// Depth clears sample data whose DP is below Min. Records without a DP
// format field are unchanged; records left with no sample data are dropped.
type Depth struct {
	Min int
}

// UpdateHeader implements Filter.
func (d *Depth) UpdateHeader(*vcf.Header) {}

// Apply implements Filter.
func (d *Depth) Apply(rec *vcf.Record, _ int) bool {
	idx := rec.FormatIndex("DP")
	if idx < 0 {
		return true
	}
	kept := 0
	for i, s := range rec.Samples {
		if s == nil {
			continue
		}
		dp, err := strconv.Atoi(s.Get(idx))
		if err != nil || dp < d.Min {
			rec.Samples[i] = nil
			continue
		}
		kept++
	}
	return kept > 0
}

// Site adds a filter to sites where more than MaxFail of the samples with
// data fail their FT field, and PASS otherwise.
type Site struct {
	MaxFail float64
	// Warn receives diagnostics about dropped records. It defaults to
	// log.Error.
	Warn func(string)
}

// NewSite returns a site filter. maxFail must be in [0,1].
func NewSite(maxFail float64) (*Site, error) {
	if maxFail < 0 || maxFail > 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("min fail filter must be in [0,1], got %v", maxFail))
	}
	return &Site{MaxFail: maxFail}, nil
}

func (f *Site) percent() string {
	return strconv.FormatFloat(f.MaxFail*100, 'g', 2, 64)
}

// Name returns the name of the added filter, "sf" followed by the
// percentage.
func (f *Site) Name() string { return "sf" + f.percent() }

// UpdateHeader implements Filter.
func (f *Site) UpdateHeader(h *vcf.Header) {
	h.Add(vcf.NewFilterMeta(f.Name(), "More than "+f.percent()+"% samples with data failed the per-sample filter"))
}

// Apply implements Filter. Records without an FT format field are dropped.
func (f *Site) Apply(rec *vcf.Record, line int) bool {
	idx := rec.FormatIndex("FT")
	if idx < 0 {
		msg := fmt.Sprintf("No per-sample filter field available for line %d", line)
		if f.Warn != nil {
			f.Warn(msg)
		} else {
			log.Error.Printf("%s", msg)
		}
		return false
	}
	var total, failed int
	for _, s := range rec.Samples {
		if s == nil {
			continue
		}
		total++
		if vcf.IsFiltered(s.Get(idx)) {
			failed++
		}
	}
	if total > 0 && float64(failed)/float64(total) > f.MaxFail {
		rec.AddFilter(f.Name())
	} else {
		rec.AddFilter("PASS")
	}
	return true
}

// Stats counts the records a Run kept and dropped.
type Stats struct {
	Kept, Dropped int
}

// Run copies r to out through f.
func Run(r *vcf.Reader, out io.Writer, f Filter) (Stats, error) {
	var stats Stats
	h := r.Header().Clone()
	f.UpdateHeader(h)
	w := vcf.NewWriter(out, h)
	for r.Scan() {
		rec := r.Record()
		if !f.Apply(rec, r.Line()) {
			stats.Dropped++
			continue
		}
		stats.Kept++
		if err := w.Write(rec); err != nil {
			return stats, err
		}
	}
	if err := r.Err(); err != nil {
		return stats, err
	}
	return stats, w.Flush()
}
