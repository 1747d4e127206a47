package interval

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/biostream/encoding/bed"
	"github.com/grailbio/biostream/locus"
)

// IntersectOptions configure an Intersector.
type IntersectOptions struct {
	Policy MatchPolicy
	// AdjacentInsertions makes a zero-length interval intersect any interval
	// that starts or stops at its position.
	AdjacentInsertions bool
	// FirstOnly reports at most one match per A interval.
	FirstOnly bool
}

// Collector receives the results of an intersection, in A order.
type Collector interface {
	// Hit is called for every matching pair.
	Hit(a, b bed.Interval) error
	// EndA is called once per A interval after its hits; hits == 0 marks an
	// unmatched A.
	EndA(a bed.Interval, hits int) error
	// MissB is called for every B interval that matched no A.
	MissB(b bed.Interval) error
}

// relation of an A interval to a B interval in the join.
type relation int

const (
	aBeforeB relation = iota
	aIntersectsB
	aAfterB
)

type windowEntry struct {
	iv  bed.Interval
	hit bool
}

// Intersector merge-joins two sorted interval streams. It keeps a window of
// B intervals that start before the current A interval ends; entries that
// end before the current A starts are evicted, since later A intervals start
// no earlier.
type Intersector struct {
	a      Source
	b      *peeker
	order  *locus.Order
	opts   IntersectOptions
	window []windowEntry
}

// NewIntersector returns an intersector of a (primary) and b. The sources
// should check their own sort order under order.
func NewIntersector(a, b Source, order *locus.Order, opts IntersectOptions) *Intersector {
	return &Intersector{a: a, b: &peeker{src: b}, order: order, opts: opts}
}

func (x *Intersector) relate(a, b bed.Interval) relation {
	switch x.order.Compare(a.Chrom, b.Chrom) {
	case -1:
		return aBeforeB
	case 1:
		return aAfterB
	}
	if x.opts.AdjacentInsertions {
		if (a.Len() == 0 && (a.Start == b.Start || a.Start == b.Stop)) ||
			(b.Len() == 0 && (b.Start == a.Start || b.Start == a.Stop)) {
			return aIntersectsB
		}
	} else if a.Len() == 0 && b.Len() == 0 && a.Start == b.Start {
		// Identical insertions.
		return aIntersectsB
	}
	if a.Stop <= b.Start {
		return aBeforeB
	}
	if b.Stop <= a.Start {
		return aAfterB
	}
	return aIntersectsB
}

// test records a hit of a on b if the policy accepts it. With FirstOnly,
// matches after the first still mark b as hit but are not reported.
func (x *Intersector) test(c Collector, a bed.Interval, e *windowEntry, hits *int) error {
	if !x.opts.Policy.Matches(a, e.iv) {
		return nil
	}
	e.hit = true
	if x.opts.FirstOnly && *hits > 0 {
		return nil
	}
	*hits++
	return c.Hit(a, e.iv)
}

// scanWindow tests a against the window, evicting entries that lie before it.
func (x *Intersector) scanWindow(c Collector, a bed.Interval, hits *int) error {
	kept := x.window[:0]
	for i := 0; i < len(x.window); i++ {
		e := x.window[i]
		switch x.relate(a, e.iv) {
		case aBeforeB:
			kept = append(kept, x.window[i:]...)
			x.window = kept
			return nil
		case aAfterB:
			if !e.hit {
				if err := c.MissB(e.iv); err != nil {
					return err
				}
			}
			continue
		}
		if err := x.test(c, a, &e, hits); err != nil {
			return err
		}
		kept = append(kept, e)
	}
	x.window = kept
	return nil
}

// Run performs the join, reporting to c.
func (x *Intersector) Run(c Collector) error {
	var nA int
	for x.a.Scan() {
		a := x.a.Record()
		nA++
		hits := 0
		if err := x.scanWindow(c, a, &hits); err != nil {
			return err
		}
		if len(x.window) == 0 {
			// Skip B intervals that end before a.
			for {
				b, ok := x.b.peek()
				if !ok || x.relate(a, b) != aAfterB {
					break
				}
				x.b.next()
				if err := c.MissB(b); err != nil {
					return err
				}
			}
		}
		for {
			b, ok := x.b.next()
			if !ok {
				break
			}
			rel := x.relate(a, b)
			if rel == aBeforeB {
				x.window = append(x.window, windowEntry{iv: b})
				break
			}
			if rel == aAfterB {
				if err := c.MissB(b); err != nil {
					return err
				}
				continue
			}
			e := windowEntry{iv: b}
			if err := x.test(c, a, &e, &hits); err != nil {
				return err
			}
			x.window = append(x.window, e)
		}
		if err := x.b.err(); err != nil {
			return err
		}
		if err := c.EndA(a, hits); err != nil {
			return err
		}
	}
	if err := x.a.Err(); err != nil {
		return err
	}
	for _, e := range x.window {
		if !e.hit {
			if err := c.MissB(e.iv); err != nil {
				return err
			}
		}
	}
	x.window = nil
	for {
		b, ok := x.b.next()
		if !ok {
			break
		}
		if err := c.MissB(b); err != nil {
			return err
		}
	}
	if log.At(log.Debug) {
		log.Debug.Printf("intersect: %d A intervals, policy %v", nA, x.opts.Policy)
	}
	return x.b.err()
}

// peeker adds one interval of lookahead to a Source.
type peeker struct {
	src    Source
	rec    bed.Interval
	primed bool
	ok     bool
}

func (p *peeker) peek() (bed.Interval, bool) {
	if !p.primed {
		p.ok = p.src.Scan()
		if p.ok {
			p.rec = p.src.Record()
		}
		p.primed = true
	}
	return p.rec, p.ok
}

func (p *peeker) next() (bed.Interval, bool) {
	rec, ok := p.peek()
	p.primed = false
	return rec, ok
}

func (p *peeker) err() error { return p.src.Err() }
