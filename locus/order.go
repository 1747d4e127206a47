// Package locus defines the chromosome ordering shared by every stream of an
// invocation, and the per-stream checks that enforce it.
package locus

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

type orderMode int

const (
	observedOrder orderMode = iota
	explicitOrder
	naturalOrder
)

// Order ranks chromosome names. The zero value is not usable; use one of the
// constructors.
//
// In observed mode (the default) the order is built from precedence: each
// stream that moves from chromosome a to chromosome b records that a sorts
// before b, and a stream that later moves from b to a contradicts it. Two
// chromosomes no stream has related compare in natural order, and the result
// is recorded, so later comparisons and streams must agree with it. In
// explicit mode ranks come from a user-supplied list, and observing a
// chromosome outside the list fails. In natural mode names compare by
// embedded version numbers, so "chr2" sorts before "chr10".
type Order struct {
	mode  orderMode
	ranks map[string]int
	names []string

	// Observed mode: direct successors, and the memoized relation of pairs
	// known to be ordered.
	next     map[string][]string
	relation map[[2]string]int
}

// NewObservedOrder returns an order that ranks chromosomes by the order
// streams present them in.
func NewObservedOrder() *Order {
	return &Order{
		mode:     observedOrder,
		ranks:    map[string]int{},
		next:     map[string][]string{},
		relation: map[[2]string]int{},
	}
}

// NewNaturalOrder returns an order that compares names by version number.
func NewNaturalOrder() *Order {
	return &Order{mode: naturalOrder, ranks: map[string]int{}}
}

// NewExplicitOrder returns an order defined by names. Duplicate names are an
// error.
func NewExplicitOrder(names []string) (*Order, error) {
	o := &Order{mode: explicitOrder, ranks: make(map[string]int, len(names))}
	for _, name := range names {
		if name == "" {
			return nil, errors.E(errors.Invalid, "empty chromosome name in chromosome order")
		}
		if _, ok := o.ranks[name]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("chromosome %q listed twice in chromosome order", name))
		}
		o.ranks[name] = len(o.names)
		o.names = append(o.names, name)
	}
	if len(o.names) == 0 {
		return nil, errors.E(errors.Invalid, "empty chromosome order")
	}
	return o, nil
}

// ParseOrder builds an order from a command-line value: "" or "observed"
// selects observed order, "natural" selects natural order, and anything else
// is a comma-separated explicit list.
func ParseOrder(spec string) (*Order, error) {
	switch spec {
	case "", "observed":
		return NewObservedOrder(), nil
	case "natural":
		return NewNaturalOrder(), nil
	}
	return NewExplicitOrder(strings.Split(spec, ","))
}

// Known reports whether name has been observed, or is listed in explicit
// mode.
func (o *Order) Known(name string) bool {
	_, ok := o.ranks[name]
	return ok
}

// Observe registers a chromosome without ordering it. It only fails in
// explicit mode, for names outside the list.
func (o *Order) Observe(name string) error {
	switch o.mode {
	case observedOrder:
		if _, ok := o.ranks[name]; !ok {
			o.ranks[name] = len(o.names)
			o.names = append(o.names, name)
		}
	case explicitOrder:
		if _, ok := o.ranks[name]; !ok {
			return errors.E(errors.Invalid, fmt.Sprintf("chromosome %q is not in the chromosome order", name))
		}
	}
	return nil
}

// Append observes name. In observed mode a name seen for the first time
// sorts after the last name observed before it, which ranks a single stream
// of unsorted records by first appearance.
func (o *Order) Append(name string) error {
	if o.mode != observedOrder || o.Known(name) {
		return o.Observe(name)
	}
	var last string
	if n := len(o.names); n > 0 {
		last = o.names[n-1]
	}
	_ = o.Observe(name)
	if last != "" {
		o.link(last, name)
	}
	return nil
}

// Declare records that names, such as the contigs of a VCF header, sort in
// the given order. Pairs that contradict the order are ignored; the records
// that use them fail instead.
func (o *Order) Declare(names []string) {
	var prev string
	for _, name := range names {
		if o.Observe(name) != nil {
			continue
		}
		if prev != "" {
			o.Precede(prev, name)
		}
		prev = name
	}
}

// Precede records that a sorts before b. It returns false, and records
// nothing, if the order already places b before a.
func (o *Order) Precede(a, b string) bool {
	if a == b {
		return true
	}
	if o.mode != observedOrder {
		return o.Compare(a, b) < 0
	}
	_ = o.Observe(a)
	_ = o.Observe(b)
	if o.reaches(a, b) {
		return true
	}
	if o.reaches(b, a) {
		return false
	}
	o.link(a, b)
	return true
}

// Names returns the chromosomes registered so far: the list in explicit
// mode, or first-observation order in observed mode. It is empty in natural
// mode.
func (o *Order) Names() []string {
	return o.names
}

// Compare returns -1, 0, or 1 as chromosome a sorts before, with, or after b.
func (o *Order) Compare(a, b string) int {
	if a == b {
		return 0
	}
	switch o.mode {
	case naturalOrder:
		return naturalCompare(a, b)
	case observedOrder:
		_ = o.Observe(a)
		_ = o.Observe(b)
		if o.reaches(a, b) {
			return -1
		}
		if o.reaches(b, a) {
			return 1
		}
		c := naturalCompare(a, b)
		if c == 0 {
			c = strings.Compare(a, b)
		}
		if c < 0 {
			o.link(a, b)
		} else {
			o.link(b, a)
		}
		return c
	}
	ra, oka := o.ranks[a]
	rb, okb := o.ranks[b]
	switch {
	case oka && okb:
		return compareInts(ra, rb)
	case oka:
		return -1
	case okb:
		return 1
	}
	return strings.Compare(a, b)
}

func (o *Order) link(a, b string) {
	o.next[a] = append(o.next[a], b)
	o.relation[[2]string{a, b}] = -1
	o.relation[[2]string{b, a}] = 1
}

// reaches reports whether a precedes b through recorded edges.
func (o *Order) reaches(a, b string) bool {
	if r, ok := o.relation[[2]string{a, b}]; ok {
		return r < 0
	}
	seen := map[string]bool{a: true}
	stack := []string{a}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range o.next[cur] {
			if n == b {
				o.relation[[2]string{a, b}] = -1
				o.relation[[2]string{b, a}] = 1
				return true
			}
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return false
}

// CompareKeys orders two keys by chromosome, then start, then stop.
func (o *Order) CompareKeys(a, b Key) int {
	if c := o.Compare(a.Chrom, b.Chrom); c != 0 {
		return c
	}
	if c := compareInts(a.Start, b.Start); c != 0 {
		return c
	}
	return compareInts(a.Stop, b.Stop)
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// naturalCompare compares strings treating each run of digits as a number.
func naturalCompare(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si, sj := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na := strings.TrimLeft(a[si:i], "0")
			nb := strings.TrimLeft(b[sj:j], "0")
			if len(na) != len(nb) {
				return compareInts(len(na), len(nb))
			}
			if c := strings.Compare(na, nb); c != 0 {
				return c
			}
			// "01" and "1" are numerically equal; the shorter run sorts first.
			if c := compareInts(i-si, j-sj); c != 0 {
				return c
			}
			continue
		}
		if ca != cb {
			return compareInts(int(ca), int(cb))
		}
		i++
		j++
	}
	return compareInts(len(a)-i, len(b)-j)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
