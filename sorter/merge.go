package sorter

import (
	"bytes"

	"github.com/biogo/store/llrb"
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/biostream/locus"
	"v.io/x/lib/vlog"
)

// cursor is one sorted input of a k-way merge. next must be called before
// the first entry.
type cursor interface {
	next() bool
	entry() entry
	err() error
	close() error
}

// mergeLeaf is a cursor positioned on its current entry, as stored in the
// merge tree. Leaves never compare equal: ties fall back to seq, the
// cursor's arrival order, which also keeps llrb from replacing a leaf on
// Insert.
type mergeLeaf struct {
	seq    int
	c      cursor
	cur    entry
	order  *locus.Order
	stable bool
}

func (l *mergeLeaf) Compare(c1 llrb.Comparable) int {
	l1 := c1.(*mergeLeaf)
	if c := compareEntries(l.order, l.stable, &l.cur, &l1.cur); c != 0 {
		return c
	}
	return l.seq - l1.seq
}

// Iterator yields merged records in sorted order.
type Iterator struct {
	codec   Codec
	order   *locus.Order
	unique  bool
	tree    llrb.Tree
	cursors []cursor
	rec     interface{}
	err     error
	closed  bool

	// State of unique mode: the key of the current group of equal keys, and
	// the encodings emitted within it.
	hasGroup bool
	group    locus.Key
	seen     map[uint64][][]byte
}

func newIterator(order *locus.Order, codec Codec, stable, unique bool, cursors []cursor) *Iterator {
	it := &Iterator{codec: codec, order: order, unique: unique, cursors: cursors}
	for i, c := range cursors {
		if c.next() {
			it.tree.Insert(&mergeLeaf{seq: i, c: c, cur: c.entry(), order: order, stable: stable})
		} else if err := c.err(); err != nil {
			it.err = err
		}
	}
	return it
}

// duplicate reports whether e repeats a record already emitted in its group.
func (it *Iterator) duplicate(e *entry) bool {
	if !it.hasGroup || it.order.CompareKeys(it.group, e.key) != 0 {
		it.hasGroup = true
		it.group = e.key
		it.seen = map[uint64][][]byte{}
	}
	h := farm.Hash64(e.body)
	for _, body := range it.seen[h] {
		if bytes.Equal(body, e.body) {
			return true
		}
	}
	it.seen[h] = append(it.seen[h], e.body)
	return false
}

// Scan advances to the next record.
func (it *Iterator) Scan() bool {
	for it.err == nil && it.tree.Len() > 0 {
		leaf := it.tree.Min().(*mergeLeaf)
		it.tree.DeleteMin()
		e := leaf.cur
		if leaf.c.next() {
			leaf.cur = leaf.c.entry()
			it.tree.Insert(leaf)
		} else if err := leaf.c.err(); err != nil {
			it.err = err
			return false
		}
		if it.unique && it.duplicate(&e) {
			if vlog.V(2) {
				vlog.Infof("sorter: dropping duplicate %v", e.key)
			}
			continue
		}
		if e.rec != nil {
			it.rec = e.rec
			return true
		}
		rec, err := it.codec.Unmarshal(e.body)
		if err != nil {
			it.err = errors.E(err, "decode sorted record")
			return false
		}
		it.rec = rec
		return true
	}
	return false
}

// Record returns the record read by the last successful Scan.
func (it *Iterator) Record() interface{} { return it.rec }

// Err returns the first error encountered.
func (it *Iterator) Err() error { return it.err }

// Close closes the underlying cursors. It is also done by Sorter.Close.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	e := errors.Once{}
	for _, c := range it.cursors {
		e.Set(c.close())
	}
	return e.Err()
}

// Source is a stream of records, such as a bed.Reader or vcf.Reader wrapped
// to return interface{} records.
type Source interface {
	Scan() bool
	Record() interface{}
	Err() error
}

// sourceCursor adapts a Source that is already sorted.
type sourceCursor struct {
	src   Source
	codec Codec
	cur   entry
}

func (c *sourceCursor) next() bool {
	if !c.src.Scan() {
		return false
	}
	rec := c.src.Record()
	c.cur = entry{key: c.codec.Key(rec), body: c.codec.Marshal(nil, rec), rec: rec}
	return true
}

func (c *sourceCursor) entry() entry { return c.cur }
func (c *sourceCursor) err() error   { return c.src.Err() }
func (c *sourceCursor) close() error { return nil }

// MergeSorted merges sources that are each already sorted, without
// buffering. Sources should verify their own order (see
// bed.Reader.CheckSorted); MergeSorted only compares their heads. Ties go
// to the earlier source when opts.Stable is set; opts.Unique drops
// duplicates as in a full sort. Other options are ignored.
func MergeSorted(order *locus.Order, codec Codec, opts Options, srcs []Source) *Iterator {
	cursors := make([]cursor, len(srcs))
	for i, src := range srcs {
		cursors[i] = &sourceCursor{src: src, codec: codec}
	}
	return newIterator(order, codec, opts.Stable, opts.Unique, cursors)
}
