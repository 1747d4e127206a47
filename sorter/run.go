package sorter

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/biostream/locus"
)

func init() {
	recordiozstd.Init()
}

// A run is a recordio file of sorted entries. Each recordio item is one
// block holding a sequence of entries, each encoded as
//
//   uvarint len(chrom) | chrom | uvarint start | uvarint stop | uvarint len(body) | body
//
// With Snappy compression each block is snappy-encoded before being handed to
// recordio; with Zstd the recordio zstd transformer compresses the blocks.
// The trailer holds the uvarint entry count.

const (
	runBlockSize         = 1 << 20
	compressionHeaderKey = "biostream.compression"
)

type runWriter struct {
	rio         recordio.Writer
	compression Compression
	block       []byte
	n           uint64
}

func newRunWriter(out io.Writer, compression Compression) *runWriter {
	opts := recordio.WriterOpts{
		Marshal: func(scratch []byte, v interface{}) ([]byte, error) {
			return v.([]byte), nil
		},
	}
	if compression == Zstd {
		opts.Transformers = []string{recordiozstd.Name}
	}
	w := &runWriter{
		rio:         recordio.NewWriter(out, opts),
		compression: compression,
		block:       make([]byte, 0, runBlockSize),
	}
	w.rio.AddHeader(recordio.KeyTrailer, true)
	w.rio.AddHeader(compressionHeaderKey, compression.String())
	return w
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func (w *runWriter) add(e *entry) {
	b := w.block
	b = appendUvarint(b, uint64(len(e.key.Chrom)))
	b = append(b, e.key.Chrom...)
	b = appendUvarint(b, uint64(e.key.Start))
	b = appendUvarint(b, uint64(e.key.Stop))
	b = appendUvarint(b, uint64(len(e.body)))
	b = append(b, e.body...)
	w.block = b
	w.n++
	if len(w.block) >= runBlockSize {
		w.flush()
	}
}

func (w *runWriter) flush() {
	if len(w.block) == 0 {
		return
	}
	b := w.block
	if w.compression == Snappy {
		b = snappy.Encode(nil, b)
	}
	w.rio.Append(b)
	w.rio.Flush()
	// recordio may still hold b; never reuse it.
	w.block = make([]byte, 0, runBlockSize)
}

func (w *runWriter) finish() error {
	w.flush()
	w.rio.Wait()
	w.rio.SetTrailer(appendUvarint(nil, w.n))
	return w.rio.Finish()
}

// runReader is a cursor over one run file.
type runReader struct {
	ctx         context.Context
	path        string
	in          file.File
	rio         recordio.Scanner
	compression Compression
	want        uint64
	n           uint64
	block       []byte
	cur         entry
	e           error
}

func openRun(ctx context.Context, path string) (*runReader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open sort run", path)
	}
	r := &runReader{ctx: ctx, path: path, in: in}
	r.rio = recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	for _, kv := range r.rio.Header() {
		if kv.Key == compressionHeaderKey {
			if r.compression, err = ParseCompression(kv.Value.(string)); err != nil {
				_ = in.Close(ctx)
				return nil, errors.E(err, path)
			}
		}
	}
	trailer := r.rio.Trailer()
	var n int
	if r.want, n = binary.Uvarint(trailer); n <= 0 {
		_ = in.Close(ctx)
		return nil, errors.E(errors.Integrity, "sort run has no entry count", path)
	}
	return r, nil
}

func (r *runReader) readUvarint() uint64 {
	v, n := binary.Uvarint(r.block)
	if n <= 0 {
		r.e = errors.E(errors.Integrity, "corrupt sort run", r.path)
		return 0
	}
	r.block = r.block[n:]
	return v
}

func (r *runReader) readBytes() []byte {
	n := r.readUvarint()
	if r.e != nil {
		return nil
	}
	if uint64(len(r.block)) < n {
		r.e = errors.E(errors.Integrity, "corrupt sort run", r.path)
		return nil
	}
	b := make([]byte, n)
	copy(b, r.block[:n])
	r.block = r.block[n:]
	return b
}

func (r *runReader) next() bool {
	if r.e != nil {
		return false
	}
	for len(r.block) == 0 {
		if !r.rio.Scan() {
			if r.e = r.rio.Err(); r.e == nil && r.n != r.want {
				r.e = errors.E(errors.Integrity, "sort run truncated", r.path)
			}
			return false
		}
		b := r.rio.Get().([]byte)
		if r.compression == Snappy {
			var err error
			if b, err = snappy.Decode(nil, b); err != nil {
				r.e = errors.E(err, "decompress sort run", r.path)
				return false
			}
		}
		r.block = b
	}
	var key locus.Key
	key.Chrom = string(r.readBytes())
	key.Start = int(r.readUvarint())
	key.Stop = int(r.readUvarint())
	body := r.readBytes()
	if r.e != nil {
		return false
	}
	r.cur = entry{key: key, body: body}
	r.n++
	return true
}

func (r *runReader) entry() entry { return r.cur }

func (r *runReader) err() error { return r.e }

func (r *runReader) close() error {
	if r.in == nil {
		return nil
	}
	e := errors.Once{}
	e.Set(r.rio.Finish())
	e.Set(r.in.Close(r.ctx))
	r.in = nil
	return e.Err()
}
