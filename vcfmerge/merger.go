package vcfmerge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biostream/encoding/vcf"
	"github.com/grailbio/biostream/locus"
)

// SamplePriority picks which input's data wins for a sample present in
// several inputs at one site.
type SamplePriority int

const (
	// PriorityOrder prefers the earliest input.
	PriorityOrder SamplePriority = iota
	// PriorityUnfiltered prefers data whose FT passes, then input order.
	PriorityUnfiltered
	// PriorityFiltered prefers data whose FT fails, then input order.
	PriorityFiltered
)

// ParseSamplePriority parses o, u or f.
func ParseSamplePriority(s string) (SamplePriority, error) {
	switch s {
	case "o", "order":
		return PriorityOrder, nil
	case "u", "unfiltered":
		return PriorityUnfiltered, nil
	case "f", "filtered":
		return PriorityFiltered, nil
	}
	return PriorityOrder, errors.E(errors.Invalid, fmt.Sprintf("unknown sample priority %q, want o, u or f", s))
}

// Options configure a Merger.
type Options struct {
	// MergeSamples allows a sample name to appear in several inputs; their
	// data is combined per site.
	MergeSamples bool
	// ClearFilters empties the FILTER column of merged records.
	ClearFilters   bool
	SamplePriority SamplePriority
	// SampleSuffixes holds, per input, a suffix appended to sample names.
	SampleSuffixes []string
	// Strategy selects field combination rules; nil uses the defaults.
	Strategy *Strategy
	// Consensus, if set, adds a consensus filter to merged sites.
	Consensus *Consensus
	// Warn receives recoverable diagnostics. It defaults to log.Error.
	Warn func(string)
}

// cursor is the head of one input in the merge tree.
type cursor struct {
	order *locus.Order
	idx   int
	r     *vcf.Reader
	rec   *vcf.Record
}

// Compare implements llrb.Comparable.
func (c *cursor) Compare(b llrb.Comparable) int {
	o := b.(*cursor)
	if d := c.order.Compare(c.rec.Chrom, o.rec.Chrom); d != 0 {
		return d
	}
	if c.rec.Pos != o.rec.Pos {
		if c.rec.Pos < o.rec.Pos {
			return -1
		}
		return 1
	}
	return c.idx - o.idx
}

func (c *cursor) advance() bool {
	if !c.r.Scan() {
		return false
	}
	c.rec = c.r.Record()
	c.rec.Source = c.idx
	return true
}

// Merger merges sorted VCF streams into one. Records from any inputs that
// share chromosome, position and REF become one record; merged records are
// emitted in (position, REF) order.
type Merger struct {
	header    *vcf.Header
	sampleMap [][]int
	opts      Options
	warn      func(string)
	tree      llrb.Tree
	pending   []*vcf.Record
	rec       *vcf.Record
	err       errors.Once
	nSites    int
	nSkipped  int
}

// NewMerger builds the merged header, validates the strategy against it and
// positions every input on its first record. Each reader checks its own sort
// order under order.
func NewMerger(readers []*vcf.Reader, order *locus.Order, opts Options) (*Merger, error) {
	headers := make([]*vcf.Header, len(readers))
	for i, r := range readers {
		headers[i] = r.Header()
	}
	h, sampleMap, err := MergeHeaders(headers, opts.SampleSuffixes, opts.MergeSamples)
	if err != nil {
		return nil, err
	}
	if err := opts.Strategy.Validate(h); err != nil {
		return nil, err
	}
	if c := opts.Consensus; c != nil {
		h.Add(vcf.NewFilterMeta(c.Name, c.Description))
	}
	m := &Merger{header: h, sampleMap: sampleMap, opts: opts, warn: opts.Warn}
	if m.warn == nil {
		m.warn = func(msg string) { log.Error.Printf("%s", msg) }
	}
	for i, r := range readers {
		r.CheckSorted(order)
		c := &cursor{order: order, idx: i, r: r}
		if c.advance() {
			m.tree.Insert(c)
		} else if err := r.Err(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Header returns the merged header.
func (m *Merger) Header() *vcf.Header { return m.header }

// Scan produces the next merged record.
func (m *Merger) Scan() bool {
	for len(m.pending) == 0 {
		if m.err.Err() != nil || m.tree.Len() == 0 {
			if m.err.Err() == nil && log.At(log.Debug) {
				log.Debug.Printf("vcf-merge: %d sites, %d skipped", m.nSites, m.nSkipped)
			}
			return false
		}
		group := m.nextPosition()
		if m.err.Err() != nil {
			return false
		}
		m.mergePosition(group)
	}
	m.rec = m.pending[0]
	m.pending = m.pending[1:]
	return true
}

// nextPosition removes every record at the smallest position from the
// inputs.
func (m *Merger) nextPosition() []*vcf.Record {
	min := m.tree.Min().(*cursor)
	chrom, pos := min.rec.Chrom, min.rec.Pos
	var group []*vcf.Record
	for m.tree.Len() > 0 {
		c := m.tree.Min().(*cursor)
		if c.rec.Chrom != chrom || c.rec.Pos != pos {
			break
		}
		m.tree.DeleteMin()
		group = append(group, c.rec)
		if c.advance() {
			m.tree.Insert(c)
		} else if err := c.r.Err(); err != nil {
			m.err.Set(err)
			return nil
		}
	}
	return group
}

func (m *Merger) mergePosition(group []*vcf.Record) {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].Ref != group[j].Ref {
			return group[i].Ref < group[j].Ref
		}
		return group[i].Source < group[j].Source
	})
	for len(group) > 0 {
		n := 1
		for n < len(group) && group[n].Ref == group[0].Ref {
			n++
		}
		rec, keep, err := m.mergeSite(group[:n])
		if err != nil {
			m.err.Set(err)
			return
		}
		m.nSites++
		if keep {
			m.pending = append(m.pending, rec)
		} else {
			m.nSkipped++
		}
		group = group[n:]
	}
}

// sampleHolder is one input record carrying data for a merged sample.
type sampleHolder struct {
	rec *vcf.Record
	col int
	alt []int
}

func sampleFiltered(rec *vcf.Record, col int) bool {
	return vcf.IsFiltered(rec.SampleValue(col, "FT"))
}

// primary returns the index of the holder whose data wins.
func (m *Merger) primary(hs []sampleHolder) int {
	best := 0
	for i := 1; i < len(hs); i++ {
		nf := sampleFiltered(hs[i].rec, hs[i].col)
		cf := sampleFiltered(hs[best].rec, hs[best].col)
		if m.opts.SamplePriority == PriorityOrder || nf == cf {
			continue
		}
		if (m.opts.SamplePriority == PriorityFiltered) == nf {
			best = i
		}
	}
	return best
}

// mergeSite merges records sharing chromosome, position and REF, ordered by
// input. It reports false if the site is to be dropped.
func (m *Merger) mergeSite(recs []*vcf.Record) (*vcf.Record, bool, error) {
	first := recs[0]
	out := &vcf.Record{Chrom: first.Chrom, Pos: first.Pos, Ref: first.Ref}
	site := fmt.Sprintf("%s:%d", first.Chrom, first.Pos)
	altMaps := make([][]int, len(recs))
	altIndex := map[string]int{}
	seenID := map[string]bool{}
	seenFilter := map[string]bool{}
	for i, r := range recs {
		altMaps[i] = make([]int, len(r.Alt))
		for j, a := range r.Alt {
			k, ok := altIndex[a]
			if !ok {
				k = len(out.Alt)
				altIndex[a] = k
				out.Alt = append(out.Alt, a)
			}
			altMaps[i][j] = k
		}
		for _, id := range r.ID {
			if !seenID[id] {
				seenID[id] = true
				out.ID = append(out.ID, id)
			}
		}
		if r.HasQual && (!out.HasQual || r.Qual > out.Qual) {
			out.Qual, out.HasQual = r.Qual, true
		}
		for _, f := range r.Filter {
			if !seenFilter[f] {
				seenFilter[f] = true
				out.Filter = append(out.Filter, f)
			}
		}
	}
	switch {
	case m.opts.ClearFilters:
		out.Filter = nil
	case len(out.Filter) > 1:
		kept := out.Filter[:0]
		for _, f := range out.Filter {
			if f != "PASS" {
				kept = append(kept, f)
			}
		}
		out.Filter = kept
	}
	if err := m.mergeInfo(out, recs, altMaps, site); err != nil {
		return nil, false, err
	}
	state, err := m.mergeSamples(out, recs, altMaps, site)
	if err != nil {
		return nil, false, err
	}
	if c := m.opts.Consensus; c != nil {
		return out, m.applyConsensus(c, out, state, site), nil
	}
	return out, true, nil
}

func (m *Merger) combiner(section Section, id string, nAlt int, site string) *combiner {
	var def *vcf.FieldDef
	if section == Info {
		def = m.header.Info(id)
	} else {
		def = m.header.Format(id)
	}
	return &combiner{
		section: section,
		id:      id,
		def:     def,
		rule:    m.opts.Strategy.Resolve(section, id, def),
		nAlt:    nAlt,
		site:    site,
		warn:    m.warn,
	}
}

func (m *Merger) mergeInfo(out *vcf.Record, recs []*vcf.Record, altMaps [][]int, site string) error {
	var keys []string
	seen := map[string]bool{}
	for _, r := range recs {
		for _, f := range r.Info {
			if !seen[f.Key] {
				seen[f.Key] = true
				keys = append(keys, f.Key)
			}
		}
	}
	for _, key := range keys {
		c := m.combiner(Info, key, len(out.Alt), site)
		if c.rule == Ignore {
			continue
		}
		cs := make([]contribution, len(recs))
		flag := false
		for i, r := range recs {
			f, ok := r.InfoField(key)
			cs[i] = contribution{values: f.Values, present: ok, altMap: altMaps[i]}
			flag = flag || (ok && f.Flag)
		}
		if flag {
			out.Info = append(out.Info, vcf.Field{Key: key, Flag: true})
			continue
		}
		vals, ok, err := c.combine(cs)
		if err != nil {
			return err
		}
		if ok {
			out.Info = append(out.Info, vcf.Field{Key: key, Values: vals})
		}
	}
	return nil
}

// sampleState summarizes a merged sample for the consensus filter.
type sampleState struct {
	counted  bool
	filtered bool
}

func (m *Merger) mergeSamples(out *vcf.Record, recs []*vcf.Record, altMaps [][]int, site string) ([]sampleState, error) {
	nSamples := len(m.header.Samples)
	if nSamples == 0 {
		return nil, nil
	}
	seen := map[string]bool{}
	for _, r := range recs {
		for _, key := range r.Format {
			if seen[key] {
				continue
			}
			seen[key] = true
			if key != "GT" && m.combiner(Format, key, 0, site).rule == Ignore {
				continue
			}
			if key == "GT" {
				out.Format = append([]string{"GT"}, out.Format...)
			} else {
				out.Format = append(out.Format, key)
			}
		}
	}
	holders := make([][]sampleHolder, nSamples)
	for i, r := range recs {
		for col, data := range r.Samples {
			if data == nil {
				continue
			}
			k := m.sampleMap[r.Source][col]
			holders[k] = append(holders[k], sampleHolder{rec: r, col: col, alt: altMaps[i]})
		}
	}
	out.Samples = make([]vcf.SampleData, nSamples)
	state := make([]sampleState, nSamples)
	combiners := make([]*combiner, len(out.Format))
	for fi, key := range out.Format {
		if key != "GT" {
			combiners[fi] = m.combiner(Format, key, len(out.Alt), site)
		}
	}
	for k, hs := range holders {
		if len(hs) == 0 {
			continue
		}
		if p := m.primary(hs); p != 0 {
			hs[0], hs[p] = hs[p], hs[0]
		}
		data := make(vcf.SampleData, len(out.Format))
		for fi, key := range out.Format {
			if key == "GT" {
				gt, err := renumberGT(hs[0].rec.SampleValue(hs[0].col, "GT"), hs[0].alt)
				if err != nil {
					return nil, errors.E(errors.Invalid, fmt.Sprintf("%s sample %s", site, m.header.Samples[k]), err)
				}
				data[fi] = gt
				continue
			}
			c := *combiners[fi]
			c.site = fmt.Sprintf("%s sample %s", site, m.header.Samples[k])
			cs := make([]contribution, len(hs))
			for i, h := range hs {
				v := h.rec.SampleValue(h.col, key)
				cs[i] = contribution{present: h.rec.FormatIndex(key) >= 0, altMap: h.alt}
				if cs[i].present {
					cs[i].values = strings.Split(v, ",")
				}
			}
			vals, ok, err := c.combine(cs)
			if err != nil {
				return nil, err
			}
			if ok {
				data[fi] = strings.Join(vals, ",")
			} else {
				data[fi] = vcf.Missing
			}
		}
		out.Samples[k] = data
		state[k] = m.sampleState(out, data, hs[0].rec)
	}
	return state, nil
}

func (m *Merger) sampleState(out *vcf.Record, data vcf.SampleData, primary *vcf.Record) sampleState {
	if gt := out.FormatIndex("GT"); gt >= 0 {
		g, err := vcf.ParseGenotype(data.Get(gt))
		if err != nil || g.Missing() {
			return sampleState{}
		}
	}
	if ft := out.FormatIndex("FT"); ft >= 0 {
		if v := data.Get(ft); v != vcf.Missing {
			return sampleState{counted: true, filtered: vcf.IsFiltered(v)}
		}
	}
	for _, f := range primary.Filter {
		if vcf.IsFiltered(f) {
			return sampleState{counted: true, filtered: true}
		}
	}
	return sampleState{counted: true}
}

// applyConsensus adds the consensus filter when the filtered fraction of
// counted samples reaches the ratio. A site with no counted samples is
// dropped.
func (m *Merger) applyConsensus(c *Consensus, out *vcf.Record, state []sampleState, site string) bool {
	var counted, filtered int
	for _, s := range state {
		if !s.counted {
			continue
		}
		counted++
		if s.filtered {
			filtered++
		}
	}
	if counted == 0 {
		m.warn(fmt.Sprintf("Skipping entry %s: no samples with data for consensus filter %s", site, c.Name))
		return false
	}
	// The small slack keeps ratios such as 1/3 inclusive despite rounding.
	if float64(filtered) >= c.Ratio*float64(counted)-1e-9 {
		out.AddFilter(c.Name)
	}
	return true
}

// renumberGT rewrites the allele indices of gt through altMap, keeping the
// phasing separators.
func renumberGT(gt string, altMap []int) (string, error) {
	if gt == "" || gt == vcf.Missing {
		return vcf.Missing, nil
	}
	g, err := vcf.ParseGenotype(gt)
	if err != nil {
		return "", err
	}
	for i, a := range g.Alleles {
		if a <= 0 {
			continue
		}
		if a-1 >= len(altMap) {
			return "", errors.E(errors.Invalid, fmt.Sprintf("genotype %s refers to a missing ALT allele", gt))
		}
		g.Alleles[i] = altMap[a-1] + 1
	}
	return g.String(), nil
}

// Record returns the record produced by the last successful Scan.
func (m *Merger) Record() *vcf.Record { return m.rec }

// Err returns the first error encountered by Scan.
func (m *Merger) Err() error { return m.err.Err() }
