package vcfmerge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biostream/encoding/vcf"
)

// Consensus adds a FILTER to merged sites where the fraction of filtered
// samples reaches Ratio.
type Consensus struct {
	Ratio       float64
	Name        string
	Description string
}

// ParseConsensus parses "ratio,name,description". The description may
// contain commas.
func ParseConsensus(s string) (*Consensus, error) {
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("consensus filter %q: want ratio,name,description", s))
	}
	ratio, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || ratio <= 0 || ratio > 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("consensus filter %q: ratio must be in (0,1]", s))
	}
	if parts[1] == "" {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("consensus filter %q: empty filter name", s))
	}
	return &Consensus{Ratio: ratio, Name: parts[1], Description: parts[2]}, nil
}

// MergeHeaders merges the headers of the inputs: meta lines are unioned,
// keeping the first declaration of each ID, and samples are unioned in
// first-seen order. suffixes, if non-nil, holds a per-input string appended
// to that input's sample names. A sample name in more than one input is an
// error unless mergeSamples is set. The second result maps each input's
// sample columns to merged columns.
func MergeHeaders(headers []*vcf.Header, suffixes []string, mergeSamples bool) (*vcf.Header, [][]int, error) {
	out := &vcf.Header{}
	index := map[string]int{}
	sampleMap := make([][]int, len(headers))
	for i, h := range headers {
		for _, m := range h.Meta {
			out.Add(m)
		}
		sampleMap[i] = make([]int, len(h.Samples))
		for j, name := range h.Samples {
			if i < len(suffixes) {
				name += suffixes[i]
			}
			k, ok := index[name]
			if ok && !mergeSamples {
				return nil, nil, errors.E(errors.Invalid, fmt.Sprintf("duplicate sample name %q in input %d; use sample merging or a per-file suffix", name, i+1))
			}
			if !ok {
				k = len(out.Samples)
				index[name] = k
				out.Samples = append(out.Samples, name)
			}
			sampleMap[i][j] = k
		}
	}
	return out, sampleMap, nil
}
