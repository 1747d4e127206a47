// Package concordance compares two sets of SNV calls in BED form and reports
// how well they agree, broken down by zygosity and call type.
//
// Each BED line carries "REF/CALL" in its first extra column, where CALL is
// an IUB code, optionally followed by a quality and a read depth column.
package concordance

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/biostream/encoding/bed"
	"github.com/grailbio/biostream/interval"
	"github.com/pkg/errors"
)

// MatchType classifies a pair of calls at the same site.
type MatchType int

// Match types, in report order.
const (
	Match MatchType = iota
	PartialMatch
	Mismatch
	ReferenceMismatch
)

func (m MatchType) String() string {
	switch m {
	case Match:
		return "match"
	case PartialMatch:
		return "partial match"
	case ReferenceMismatch:
		return "reference mismatch"
	}
	return "mismatch"
}

type callType int

const (
	ambiguousCall callType = iota
	referenceCall
	snvCall
)

// call is one parsed SNV.
type call struct {
	ref, alt       string
	refIUB, altIUB interval.Bases
	quality, depth float64
}

func parseCall(iv bed.Interval) (call, error) {
	var c call
	if len(iv.Extra) == 0 {
		return c, errors.Errorf("%s: missing REF/CALL column", iv)
	}
	parts := strings.SplitN(iv.Extra[0], "/", 2)
	c.ref, c.alt = parts[0], "-"
	if len(parts) == 2 {
		c.alt = parts[1]
	}
	if len(c.ref) == 1 {
		c.refIUB = interval.IUB(c.ref[0])
	}
	if len(c.alt) == 1 {
		c.altIUB = interval.IUB(c.alt[0])
	}
	var err error
	if len(iv.Extra) >= 2 {
		if c.quality, err = strconv.ParseFloat(iv.Extra[1], 64); err != nil {
			return c, errors.Errorf("%s: bad quality value %q", iv, iv.Extra[1])
		}
	}
	if len(iv.Extra) >= 3 {
		if c.depth, err = strconv.ParseFloat(iv.Extra[2], 64); err != nil {
			return c, errors.Errorf("%s: bad read depth value %q", iv, iv.Extra[2])
		}
	}
	return c, nil
}

// description classifies one call relative to the reference.
type description struct {
	heterozygous bool
	alleles      int
	typ          callType
	// overlap is the number of called bases shared with the reference.
	overlap int
}

func describe(c call) description {
	d := description{alleles: c.altIUB.Count()}
	d.heterozygous = d.alleles > 1
	switch {
	case c.alt == "N":
		d.typ = ambiguousCall
	case c.altIUB == c.refIUB:
		d.typ = referenceCall
		d.overlap = d.alleles
	default:
		d.typ = snvCall
		d.overlap = (c.altIUB & c.refIUB).Count()
	}
	return d
}

func (d description) format(detail bool) string {
	var b strings.Builder
	if d.heterozygous {
		b.WriteString("heterozygous ")
		if detail {
			fmt.Fprintf(&b, "(%d alleles) ", d.alleles-d.overlap)
		}
	} else {
		b.WriteString("homozygous ")
	}
	switch d.typ {
	case referenceCall:
		b.WriteString("reference")
	case snvCall:
		b.WriteString("snv")
	default:
		b.WriteString("ambiguous call")
	}
	return b.String()
}

func (d description) category() string { return d.format(false) }

func matchType(a, b call) MatchType {
	switch {
	case a.ref != b.ref:
		return ReferenceMismatch
	case a.altIUB == b.altIUB:
		return Match
	case a.altIUB&b.altIUB != 0:
		return PartialMatch
	}
	return Mismatch
}

type counter struct {
	hits  int
	depth float64
}

// Report accumulates concordance counts. It implements interval.Collector.
type Report struct {
	// UseDepth selects read depth rather than quality as the averaged metric.
	UseDepth bool
	// Hits, UnmatchedA and UnmatchedB, if non-nil, receive matched pairs and
	// unmatched calls.
	Hits                   *tsv.Writer
	UnmatchedA, UnmatchedB *bed.Writer

	totals  map[string]int
	results map[string]map[MatchType]map[string]*counter
}

var _ interval.Collector = (*Report)(nil)

// NewReport returns an empty report.
func NewReport(useDepth bool) *Report {
	return &Report{
		UseDepth: useDepth,
		totals:   map[string]int{},
		results:  map[string]map[MatchType]map[string]*counter{},
	}
}

// Hit implements interval.Collector.
func (r *Report) Hit(a, b bed.Interval) error {
	if r.Hits != nil {
		bed.WriteColumns(r.Hits, a)
		bed.WriteColumns(r.Hits, b)
		if err := r.Hits.EndLine(); err != nil {
			return err
		}
	}
	ca, err := parseCall(a)
	if err != nil {
		return err
	}
	cb, err := parseCall(b)
	if err != nil {
		return err
	}
	cat := describe(ca).category()
	byType := r.results[cat]
	if byType == nil {
		byType = map[MatchType]map[string]*counter{}
		r.results[cat] = byType
	}
	byDesc := byType[matchType(ca, cb)]
	if byDesc == nil {
		byDesc = map[string]*counter{}
		byType[matchType(ca, cb)] = byDesc
	}
	desc := describe(cb).format(true)
	cnt := byDesc[desc]
	if cnt == nil {
		cnt = &counter{}
		byDesc[desc] = cnt
	}
	cnt.hits++
	if r.UseDepth {
		cnt.depth += cb.depth
	} else {
		cnt.depth += cb.quality
	}
	r.totals[cat]++
	return nil
}

// EndA implements interval.Collector. Unmatched A calls count toward their
// category total.
func (r *Report) EndA(a bed.Interval, hits int) error {
	if hits > 0 {
		return nil
	}
	if r.UnmatchedA != nil {
		if err := r.UnmatchedA.Write(a); err != nil {
			return err
		}
	}
	ca, err := parseCall(a)
	if err != nil {
		return err
	}
	r.totals[describe(ca).category()]++
	return nil
}

// MissB implements interval.Collector.
func (r *Report) MissB(b bed.Interval) error {
	if r.UnmatchedB != nil {
		return r.UnmatchedB.Write(b)
	}
	return nil
}

func sortedKeys(m map[string]*counter) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write writes the report. Categories with no hits are omitted.
func (r *Report) Write(out io.Writer) error {
	w := tsv.NewWriter(out)
	cats := make([]string, 0, len(r.results))
	for c := range r.results {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		w.WriteString(cat)
		w.WriteString(strconv.Itoa(r.totals[cat]))
		if err := w.EndLine(); err != nil {
			return err
		}
		byType := r.results[cat]
		for mt := Match; mt <= ReferenceMismatch; mt++ {
			byDesc, ok := byType[mt]
			if !ok {
				continue
			}
			w.WriteString("")
			w.WriteString(mt.String())
			if err := w.EndLine(); err != nil {
				return err
			}
			for _, desc := range sortedKeys(byDesc) {
				c := byDesc[desc]
				w.WriteString("")
				w.WriteString("")
				w.WriteString(desc)
				w.WriteString(strconv.Itoa(c.hits))
				w.WriteString(strconv.FormatFloat(c.depth/float64(c.hits), 'f', 2, 64))
				if err := w.EndLine(); err != nil {
					return err
				}
			}
		}
	}
	return w.Flush()
}
