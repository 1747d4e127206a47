package locus

import "fmt"

// Key is the ordering key of a record: a chromosome and a half-open span.
type Key struct {
	Chrom string
	Start int
	Stop  int
}

// String formats the key as chrom:start-stop.
func (k Key) String() string {
	return fmt.Sprintf("%s:%d-%d", k.Chrom, k.Start, k.Stop)
}

// UnsortedError reports a record that violates its stream's sort order.
type UnsortedError struct {
	Stream string
	// Prev is the last record accepted from the stream, Cur the offending one.
	Prev, Cur string
	Reason    string
}

func (e *UnsortedError) Error() string {
	msg := fmt.Sprintf("Unsorted data found in stream %s: '%s' follows '%s'", e.Stream, e.Cur, e.Prev)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Checker verifies that one stream is non-decreasing in (chromosome,
// position). Each chromosome change is recorded in the Order, so a stream
// that contradicts the order of another stream, or a comparison already made
// between them, is reported too.
type Checker struct {
	stream  string
	order   *Order
	started bool
	chrom   string
	pos     int
	// Chromosomes the stream has moved past.
	done map[string]bool
}

// NewChecker returns a checker for the named stream.
func (o *Order) NewChecker(stream string) *Checker {
	return &Checker{stream: stream, order: o, done: map[string]bool{}}
}

// Check accepts the next record of the stream.
func (c *Checker) Check(chrom string, pos int) error {
	if !c.started {
		if err := c.order.Observe(chrom); err != nil {
			return err
		}
		c.started = true
		c.chrom, c.pos = chrom, pos
		return nil
	}
	if chrom == c.chrom {
		if pos < c.pos {
			return c.unsorted(chrom, pos, "")
		}
		c.pos = pos
		return nil
	}
	if c.done[chrom] {
		return c.unsorted(chrom, pos, fmt.Sprintf("chromosome %s is split", chrom))
	}
	if err := c.order.Observe(chrom); err != nil {
		return err
	}
	if !c.order.Precede(c.chrom, chrom) {
		return c.unsorted(chrom, pos, fmt.Sprintf("chromosome %s sorts before %s", chrom, c.chrom))
	}
	c.done[c.chrom] = true
	c.chrom, c.pos = chrom, pos
	return nil
}

func (c *Checker) unsorted(chrom string, pos int, reason string) error {
	return &UnsortedError{
		Stream: c.stream,
		Prev:   fmt.Sprintf("%s:%d", c.chrom, c.pos),
		Cur:    fmt.Sprintf("%s:%d", chrom, pos),
		Reason: reason,
	}
}
