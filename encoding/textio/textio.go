// Package textio opens line-oriented genomic text files for reading and
// writing. The path "-" names stdin or stdout. Paths ending in .gz are
// gunzipped on read and written as bgzf, which any gzip reader accepts.
package textio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
)

// Stdio is the path that names stdin or stdout.
const Stdio = "-"

// bgzfConcurrency is the number of compression goroutines for .gz outputs.
const bgzfConcurrency = 4

type reader struct {
	io.Reader
	closers []func() error
}

func (r *reader) Close() error {
	e := errors.Once{}
	for i := len(r.closers) - 1; i >= 0; i-- {
		e.Set(r.closers[i]())
	}
	return e.Err()
}

// Open opens path for reading. A missing local file yields an error of kind
// errors.NotExist.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if path == Stdio {
		return &reader{Reader: bufio.NewReaderSize(os.Stdin, 1<<20)}, nil
	}
	if !strings.Contains(path, "://") {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.E(errors.NotExist, fmt.Sprintf("%s: no such file", path))
			}
			return nil, errors.E(err, path)
		}
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	r := &reader{closers: []func() error{func() error { return in.Close(ctx) }}}
	var src io.Reader = in.Reader(ctx)
	if fileio.DetermineType(path) == fileio.Gzip {
		gz, err := gzip.NewReader(src)
		if err != nil {
			_ = in.Close(ctx)
			return nil, errors.E(err, "gzip", path)
		}
		src = gz
		r.closers = append(r.closers, gz.Close)
	}
	r.Reader = bufio.NewReaderSize(src, 1<<20)
	return r, nil
}

type writer struct {
	*bufio.Writer
	closers []func() error
}

func (w *writer) Close() error {
	e := errors.Once{}
	e.Set(w.Flush())
	for i := len(w.closers) - 1; i >= 0; i-- {
		e.Set(w.closers[i]())
	}
	return e.Err()
}

// Create opens path for writing, truncating any existing file. Close must be
// called to flush the output.
func Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if path == Stdio || path == "" {
		return &writer{Writer: bufio.NewWriterSize(os.Stdout, 1<<20)}, nil
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	w := &writer{closers: []func() error{func() error { return out.Close(ctx) }}}
	var dst io.Writer = out.Writer(ctx)
	if fileio.DetermineType(path) == fileio.Gzip {
		bw := bgzf.NewWriter(dst, bgzfConcurrency)
		w.closers = append(w.closers, bw.Close)
		dst = bw
	}
	w.Writer = bufio.NewWriterSize(dst, 1<<20)
	return w, nil
}

// NotFound reports whether err came from opening a file that does not exist.
func NotFound(err error) bool {
	return errors.Is(errors.NotExist, err)
}
