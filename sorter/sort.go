// Package sorter implements a bounded-memory external sort of genomic
// records. Records are buffered up to a record-count ceiling, sorted, and
// spilled to temporary recordio runs; the final pass merges the runs and the
// last buffer with an llrb tree of cursors.
//
// Example:
//   s := sorter.New(order, sorter.BEDCodec{}, sorter.Options{})
//   defer s.Close()
//   for r.Scan() {
//     if err := s.Add(r.Record()); err != nil { ... }
//   }
//   it, err := s.Iterator()
//   for it.Scan() {
//     rec := it.Record().(bed.Interval)
//   }
//   if err := it.Err(); err != nil { ... }
package sorter

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"sort"

	humanize "github.com/dustin/go-humanize"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/sync/multierror"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/biostream/locus"
	"v.io/x/lib/vlog"
)

// DefaultMaxRecords is the default number of records held in memory before
// spilling to disk.
const DefaultMaxRecords = 1000000

// Compression selects how runs are compressed.
type Compression int

const (
	// Snappy compresses each run block with snappy.
	Snappy Compression = iota
	// NoCompression stores run blocks as is.
	NoCompression
	// Zstd compresses run blocks with the recordio zstd transformer.
	Zstd
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Zstd:
		return "zstd"
	}
	return "snappy"
}

// ParseCompression parses "n"/"none", "s"/"snappy", or "z"/"zstd".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "n", "none":
		return NoCompression, nil
	case "s", "snappy", "":
		return Snappy, nil
	case "z", "zstd":
		return Zstd, nil
	}
	return Snappy, errors.E(errors.Invalid, fmt.Sprintf("unknown compression %q, expected one of n, s, z", s))
}

// Options controls a Sorter.
type Options struct {
	// MaxRecords is the memory ceiling, in records. If <= 0,
	// DefaultMaxRecords is used.
	MaxRecords int
	// Stable keeps records with equal keys in input order. Otherwise ties are
	// broken by the encoded record, which makes the output independent of
	// MaxRecords either way.
	Stable bool
	// Unique drops a record when an identical one was already emitted with the
	// same key.
	Unique bool
	// TmpDir holds the runs. "" means the system default.
	TmpDir string
	// Compression applies to runs.
	Compression Compression
}

// Codec converts a record type to and from the bytes stored in runs. Two
// records are duplicates iff their encodings are equal.
type Codec interface {
	Key(rec interface{}) locus.Key
	Marshal(buf []byte, rec interface{}) []byte
	Unmarshal(data []byte) (interface{}, error)
}

// entry is one buffered record.
type entry struct {
	key  locus.Key
	body []byte
	// rec is the decoded record, when the entry came from a live stream.
	rec interface{}
}

// Sorter sorts records added with Add. Close must be called to remove the
// runs, on every path.
type Sorter struct {
	opts      Options
	order     *locus.Order
	codec     Codec
	buf       []entry
	runs      []string
	nAdded    int64
	iterators []*Iterator
	done      bool
}

// New creates a sorter. Chromosomes are ranked by order; in observed mode a
// new chromosome sorts after those added before it.
func New(order *locus.Order, codec Codec, opts Options) *Sorter {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	return &Sorter{opts: opts, order: order, codec: codec}
}

func compareEntries(order *locus.Order, stable bool, a, b *entry) int {
	if c := order.CompareKeys(a.key, b.key); c != 0 || stable {
		return c
	}
	return bytes.Compare(a.body, b.body)
}

// Add adds a record. The buffer is spilled when it is full and another
// record arrives.
func (s *Sorter) Add(rec interface{}) error {
	if s.done {
		return errors.E(errors.Precondition, "sorter: Add after Iterator")
	}
	key := s.codec.Key(rec)
	if err := s.order.Append(key.Chrom); err != nil {
		return err
	}
	if len(s.buf) >= s.opts.MaxRecords {
		if err := s.spill(); err != nil {
			return err
		}
	}
	s.buf = append(s.buf, entry{key: key, body: s.codec.Marshal(nil, rec)})
	s.nAdded++
	return nil
}

func (s *Sorter) sortBuffer() {
	less := func(i, j int) bool {
		return compareEntries(s.order, s.opts.Stable, &s.buf[i], &s.buf[j]) < 0
	}
	if s.opts.Stable {
		sort.SliceStable(s.buf, less)
	} else {
		sort.Slice(s.buf, less)
	}
}

func (s *Sorter) spill() (err error) {
	s.sortBuffer()
	out, err := ioutil.TempFile(s.opts.TmpDir, "biostream-sort")
	if err != nil {
		return errors.E(err, "create sort run")
	}
	// Record the path first so Close removes it even if writing fails.
	s.runs = append(s.runs, out.Name())
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = errors.E(e, "close sort run", out.Name())
		}
	}()
	w := newRunWriter(out, s.opts.Compression)
	for i := range s.buf {
		w.add(&s.buf[i])
	}
	if err = w.finish(); err != nil {
		return errors.E(err, "write sort run", out.Name())
	}
	vlog.VI(1).Infof("sorter: spilled %s records to %s (run %d, %s records so far)",
		humanize.Comma(int64(len(s.buf))), out.Name(), len(s.runs), humanize.Comma(s.nAdded))
	s.buf = s.buf[:0]
	return nil
}

// NumRuns returns the number of runs spilled so far.
func (s *Sorter) NumRuns() int { return len(s.runs) }

// Iterator finishes input and returns an iterator over the sorted records.
// It may be called once.
func (s *Sorter) Iterator() (*Iterator, error) {
	if s.done {
		return nil, errors.E(errors.Precondition, "sorter: Iterator called twice")
	}
	s.done = true
	s.sortBuffer()
	ctx := vcontext.Background()
	cursors := make([]cursor, 0, len(s.runs)+1)
	for _, path := range s.runs {
		r, err := openRun(ctx, path)
		if err != nil {
			for _, c := range cursors {
				_ = c.close()
			}
			return nil, err
		}
		cursors = append(cursors, r)
	}
	// The buffer holds the latest input, so it merges last among ties.
	cursors = append(cursors, &memCursor{entries: s.buf, pos: -1})
	if len(s.runs) > 0 {
		vlog.VI(1).Infof("sorter: merging %d runs and %s buffered records",
			len(s.runs), humanize.Comma(int64(len(s.buf))))
	}
	it := newIterator(s.order, s.codec, s.opts.Stable, s.opts.Unique, cursors)
	s.iterators = append(s.iterators, it)
	return it, nil
}

// Close releases the iterator's files and removes every run.
func (s *Sorter) Close() error {
	errs := multierror.NewMultiError(len(s.runs) + len(s.iterators) + 1)
	for _, it := range s.iterators {
		errs.Add(it.Close())
	}
	for _, path := range s.runs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs.Add(err)
		}
	}
	s.iterators = nil
	s.runs = nil
	s.buf = nil
	return errs.Err()
}

// memCursor iterates over the final in-memory buffer.
type memCursor struct {
	entries []entry
	pos     int
}

func (c *memCursor) next() bool {
	c.pos++
	return c.pos < len(c.entries)
}

func (c *memCursor) entry() entry { return c.entries[c.pos] }
func (c *memCursor) err() error   { return nil }
func (c *memCursor) close() error { return nil }
