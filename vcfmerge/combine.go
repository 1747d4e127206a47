package vcfmerge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biostream/encoding/vcf"
)

// contribution is one input's value for a field at a site.
type contribution struct {
	values  []string
	present bool
	// altMap maps the input's ALT indices to merged ALT indices.
	altMap []int
}

func (c contribution) missing() bool {
	if !c.present {
		return true
	}
	for _, v := range c.values {
		if v != vcf.Missing && v != "" {
			return false
		}
	}
	return true
}

// combiner merges the contributions to one field under one rule.
type combiner struct {
	section Section
	id      string
	def     *vcf.FieldDef
	rule    Rule
	nAlt    int
	// site names the position in diagnostics.
	site string
	warn func(string)
}

func (c *combiner) number() string {
	if c.def == nil {
		return ""
	}
	return c.def.Number
}

// combine returns the merged values and whether the field is present.
func (c *combiner) combine(cs []contribution) ([]string, bool, error) {
	switch c.rule {
	case Ignore:
		return nil, false, nil
	case First:
		if len(cs) == 0 || !cs[0].present {
			return nil, false, nil
		}
		return cs[0].values, true, nil
	case Earliest:
		for _, x := range cs {
			if x.present {
				return x.values, true, nil
			}
		}
		return nil, false, nil
	case EnforceEqual, EnforceEqualUnordered:
		return c.enforceEqual(cs)
	case Sum:
		return c.sum(cs)
	case UniqConcat:
		return c.uniqConcat(cs)
	case PerAltDelimitedList:
		return c.perAlt(cs), anyPresent(cs), nil
	}
	if n := c.number(); n == "A" || n == "R" {
		return c.realign(cs, n == "R"), anyPresent(cs), nil
	}
	var (
		chosen   []string
		found    bool
		conflict string
	)
	for _, x := range cs {
		if x.missing() {
			continue
		}
		if !found {
			chosen, found = x.values, true
			continue
		}
		if conflict == "" && strings.Join(x.values, ",") != strings.Join(chosen, ",") {
			conflict = strings.Join(x.values, ",")
		}
	}
	if conflict != "" {
		c.ambiguous(strings.Join(chosen, ","), conflict)
	}
	if !found {
		if anyPresent(cs) {
			return []string{vcf.Missing}, true, nil
		}
		return nil, false, nil
	}
	return chosen, true, nil
}

func (c *combiner) ambiguous(kept, other string) {
	c.warn(fmt.Sprintf("%s: conflicting values for %s field %s with no merge rule (%s vs %s), keeping %s",
		c.site, c.section, c.id, kept, other, kept))
}

func anyPresent(cs []contribution) bool {
	for _, x := range cs {
		if x.present {
			return true
		}
	}
	return false
}

// realign maps per-allele values onto the merged ALT list. With ref set the
// list starts with a reference entry (Number=R).
func (c *combiner) realign(cs []contribution, ref bool) []string {
	offset := 0
	if ref {
		offset = 1
	}
	out := make([]string, c.nAlt+offset)
	for i := range out {
		out[i] = vcf.Missing
	}
	for _, x := range cs {
		if !x.present {
			continue
		}
		for j, v := range x.values {
			k := j
			if j >= offset {
				if j-offset >= len(x.altMap) {
					continue
				}
				k = x.altMap[j-offset] + offset
			}
			if v == vcf.Missing || v == "" {
				continue
			}
			if out[k] == vcf.Missing {
				out[k] = v
			} else if out[k] != v {
				c.ambiguous(out[k], v)
			}
		}
	}
	return out
}

func (c *combiner) perAlt(cs []contribution) []string {
	const delim = "/"
	lists := make([][]string, c.nAlt)
	for _, x := range cs {
		if !x.present {
			continue
		}
		for j, v := range x.values {
			if j >= len(x.altMap) {
				continue
			}
			k := x.altMap[j]
		items:
			for _, item := range strings.Split(v, delim) {
				if item == "" || item == vcf.Missing {
					continue
				}
				for _, have := range lists[k] {
					if have == item {
						continue items
					}
				}
				lists[k] = append(lists[k], item)
			}
		}
	}
	out := make([]string, c.nAlt)
	for k, l := range lists {
		if len(l) == 0 {
			out[k] = vcf.Missing
		} else {
			out[k] = strings.Join(l, delim)
		}
	}
	return out
}

func (c *combiner) uniqConcat(cs []contribution) ([]string, bool, error) {
	var out []string
	seen := map[string]bool{}
	for _, x := range cs {
		if !x.present {
			continue
		}
		for _, v := range x.values {
			if v == "" || v == vcf.Missing || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		if anyPresent(cs) {
			return []string{vcf.Missing}, true, nil
		}
		return nil, false, nil
	}
	return out, true, nil
}

func (c *combiner) enforceEqual(cs []contribution) ([]string, bool, error) {
	var (
		first []string
		found bool
	)
	for _, x := range cs {
		if !x.present {
			continue
		}
		if !found {
			first, found = x.values, true
			continue
		}
		equal := strings.Join(first, ",") == strings.Join(x.values, ",")
		if c.rule == EnforceEqualUnordered {
			equal = sameSet(first, x.values)
		}
		if !equal {
			return nil, false, errors.E(errors.Invalid, fmt.Sprintf("%s: %s condition failed for %s field %s: %s vs %s",
				c.site, c.rule, c.section, c.id, strings.Join(first, ","), strings.Join(x.values, ",")))
		}
	}
	return first, found, nil
}

func sameSet(a, b []string) bool {
	sa := map[string]bool{}
	for _, v := range a {
		sa[v] = true
	}
	sb := map[string]bool{}
	for _, v := range b {
		if !sa[v] {
			return false
		}
		sb[v] = true
	}
	return len(sa) == len(sb)
}

// sum adds values elementwise. Integers stay integers unless some value is
// fractional.
func (c *combiner) sum(cs []contribution) ([]string, bool, error) {
	var (
		ints   []int64
		floats []float64
		isInt  = true
		found  bool
	)
	for _, x := range cs {
		if !x.present {
			continue
		}
		for j, v := range x.values {
			if v == "" || v == vcf.Missing {
				continue
			}
			for len(floats) <= j {
				floats = append(floats, 0)
				ints = append(ints, 0)
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, false, errors.E(errors.Invalid, fmt.Sprintf("%s: %s field %s: cannot sum non-numeric value %q", c.site, c.section, c.id, v))
			}
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				ints[j] += n
			} else {
				isInt = false
			}
			floats[j] += f
			found = true
		}
	}
	if !found {
		return nil, false, nil
	}
	out := make([]string, len(floats))
	for j := range floats {
		if isInt {
			out[j] = strconv.FormatInt(ints[j], 10)
		} else {
			out[j] = strconv.FormatFloat(floats[j], 'g', -1, 64)
		}
	}
	return out, true, nil
}
