package vcfmerge

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/biostream/encoding/vcf"
)

// Section names the part of a record a field lives in.
type Section int

const (
	// Info fields are per site.
	Info Section = iota
	// Format fields are per sample.
	Format
)

func (s Section) String() string {
	if s == Format {
		return "format"
	}
	return "info"
}

// Rule is a value combination rule.
type Rule int

const (
	// Default keeps the first non-missing value and warns when inputs
	// disagree. Per-allele fields are realigned to the merged ALT list.
	Default Rule = iota
	// First keeps the value of the first record, even when it is absent.
	First
	// Earliest keeps the first value present.
	Earliest
	// EnforceEqual fails the merge unless all present values are equal.
	EnforceEqual
	// EnforceEqualUnordered is EnforceEqual comparing values as sets.
	EnforceEqualUnordered
	// Ignore drops the field.
	Ignore
	// Sum adds numeric values elementwise.
	Sum
	// UniqConcat concatenates the distinct list items in first-seen order.
	UniqConcat
	// PerAltDelimitedList combines, per merged ALT allele, the "/"-delimited
	// values that inputs reported for that allele.
	PerAltDelimitedList
)

var ruleNames = []string{
	Default:               "default",
	First:                 "first",
	Earliest:              "earliest",
	EnforceEqual:          "enforce-equal",
	EnforceEqualUnordered: "enforce-equal-unordered",
	Ignore:                "ignore",
	Sum:                   "sum",
	UniqConcat:            "uniq-concat",
	PerAltDelimitedList:   "per-alt-delimited-list",
}

func (r Rule) String() string { return ruleNames[r] }

// ParseRule returns the rule with the given name. Unknown names get a
// suggestion of the closest known one.
func ParseRule(name string) (Rule, error) {
	best, bestDist := "", -1
	for i, n := range ruleNames {
		if n == name {
			return Rule(i), nil
		}
		if d := matchr.Levenshtein(name, n); bestDist < 0 || d < bestDist {
			best, bestDist = n, d
		}
	}
	return Default, errors.E(errors.Invalid, fmt.Sprintf("unknown merge rule %q (did you mean %q?)", name, best))
}

type fieldKey struct {
	section Section
	id      string
}

type ruleAt struct {
	rule Rule
	// where the rule was set, for error messages.
	where string
}

// Strategy maps INFO and FORMAT fields to combination rules. The zero value
// and nil use the built-in defaults for every field.
type Strategy struct {
	rules map[fieldKey]ruleAt
}

// Set assigns rule to a field.
func (s *Strategy) Set(section Section, id string, rule Rule) {
	s.set(section, id, rule, "")
}

func (s *Strategy) set(section Section, id string, rule Rule, where string) {
	if s.rules == nil {
		s.rules = map[fieldKey]ruleAt{}
	}
	s.rules[fieldKey{section, id}] = ruleAt{rule, where}
}

// ParseStrategy reads a strategy file. Each line is "section.FIELD=rule",
// where section is info or format and defaults to info. Blank lines and
// lines starting with '#' are ignored. name identifies the file in errors.
func ParseStrategy(r io.Reader, name string) (*Strategy, error) {
	s := &Strategy{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		where := fmt.Sprintf("%s:%d", name, line)
		eq := strings.IndexByte(text, '=')
		if eq <= 0 || eq == len(text)-1 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: malformed merge strategy line %q, want section.FIELD=rule", where, text))
		}
		field, ruleName := strings.TrimSpace(text[:eq]), strings.TrimSpace(text[eq+1:])
		section := Info
		if dot := strings.IndexByte(field, '.'); dot >= 0 {
			switch field[:dot] {
			case "info":
			case "format":
				section = Format
			default:
				return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: unknown section %q, want info or format", where, field[:dot]))
			}
			field = field[dot+1:]
		}
		if field == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: missing field name in %q", where, text))
		}
		rule, err := ParseRule(ruleName)
		if err != nil {
			return nil, errors.E(errors.Invalid, where, err)
		}
		s.set(section, field, rule, where)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(errors.Invalid, name, err)
	}
	return s, nil
}

// Validate checks every explicit rule against the field declarations of h.
func (s *Strategy) Validate(h *vcf.Header) error {
	if s == nil {
		return nil
	}
	keys := make([]fieldKey, 0, len(s.rules))
	for k := range s.rules {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].section != keys[j].section {
			return keys[i].section < keys[j].section
		}
		return keys[i].id < keys[j].id
	})
	for _, k := range keys {
		r := s.rules[k]
		def := fieldDef(h, k.section, k.id)
		prefix := r.where
		if prefix != "" {
			prefix += ": "
		}
		if def == nil {
			return errors.E(errors.Invalid, fmt.Sprintf("%sunknown %s field %s", prefix, k.section, k.id))
		}
		switch r.rule {
		case Sum:
			if !def.Numeric() {
				return errors.E(errors.Invalid, fmt.Sprintf("%s%s.%s: rule sum needs a numeric field, type is %s", prefix, k.section, k.id, def.Type))
			}
		case PerAltDelimitedList:
			if def.Number != "A" {
				return errors.E(errors.Invalid, fmt.Sprintf("%s%s.%s: rule per-alt-delimited-list needs Number=A, field has Number=%s", prefix, k.section, k.id, def.Number))
			}
		}
	}
	return nil
}

func fieldDef(h *vcf.Header, section Section, id string) *vcf.FieldDef {
	if section == Format {
		return h.Format(id)
	}
	return h.Info(id)
}

// Resolve returns the rule for a field: an explicit rule if one was set,
// else sum for info DP and DP4, else uniq-concat for variable-length fields,
// else Default. def may be nil for undeclared fields.
func (s *Strategy) Resolve(section Section, id string, def *vcf.FieldDef) Rule {
	if s != nil {
		if r, ok := s.rules[fieldKey{section, id}]; ok {
			return r.rule
		}
	}
	if section == Info && (id == "DP" || id == "DP4") {
		return Sum
	}
	if def != nil && def.Number == "." {
		return UniqConcat
	}
	return Default
}
