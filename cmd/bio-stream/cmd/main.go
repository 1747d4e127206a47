// Package cmd implements the bio-stream subcommands.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	golog "log"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/biostream/encoding/bed"
	"github.com/grailbio/biostream/encoding/textio"
	"github.com/grailbio/biostream/locus"
	pkgerrors "github.com/pkg/errors"
	"v.io/x/lib/cmdline"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitNotFound = 2
	exitUnsorted = 3
)

const chromOrderHelp = `Chromosome order. "observed" (the default) orders chromosomes the way the
inputs present them, falling back to natural order for chromosomes no input
relates; "natural" compares names by embedded numbers so chr2 sorts before
chr10; anything else is a comma-separated list of names.
A value of the form @path reads the list from a file, one name per line.`

// commonFlags are the flags shared by every subcommand.
type commonFlags struct {
	output     *string
	chromOrder *string
}

func addCommonFlags(cmd *cmdline.Command) commonFlags {
	return commonFlags{
		output:     cmd.Flags.String("o", textio.Stdio, `Output path. "-" writes to stdout; a .gz suffix writes bgzf.`),
		chromOrder: cmd.Flags.String("chrom-order", "", chromOrderHelp),
	}
}

func (f commonFlags) order(ctx context.Context) (*locus.Order, error) {
	spec := *f.chromOrder
	if !strings.HasPrefix(spec, "@") {
		return locus.ParseOrder(spec)
	}
	in, err := textio.Open(ctx, spec[1:])
	if err != nil {
		return nil, err
	}
	defer in.Close() // nolint: errcheck
	var names []string
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			names = append(names, name)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, spec[1:])
	}
	return locus.NewExplicitOrder(names)
}

// withOutput creates path, runs fn on it, and closes it.
func withOutput(ctx context.Context, path string, fn func(w io.Writer) error) error {
	out, err := textio.Create(ctx, path)
	if err != nil {
		return err
	}
	e := errors.Once{}
	e.Set(fn(out))
	e.Set(out.Close())
	return e.Err()
}

// inputs tracks open input files so they can be closed together.
type inputs struct {
	closers []io.Closer
}

func (in *inputs) open(ctx context.Context, path string) (io.Reader, error) {
	r, err := textio.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	in.closers = append(in.closers, r)
	return r, nil
}

func (in *inputs) openBED(ctx context.Context, path string, order *locus.Order) (*bed.Reader, error) {
	r, err := in.open(ctx, path)
	if err != nil {
		return nil, err
	}
	br := bed.NewReader(r, path)
	if order != nil {
		br.CheckSorted(order)
	}
	return br, nil
}

func (in *inputs) Close() error {
	e := errors.Once{}
	for _, c := range in.closers {
		e.Set(c.Close())
	}
	in.closers = nil
	return e.Err()
}

// sideOutputs are optional outputs, such as unmatched records, that are
// flushed and closed together.
type sideOutputs struct {
	closers []func() error
}

// create opens path, or returns nil if path is empty.
func (o *sideOutputs) create(ctx context.Context, path string) (io.Writer, error) {
	if path == "" {
		return nil, nil
	}
	out, err := textio.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	o.closers = append(o.closers, out.Close)
	return out, nil
}

func (o *sideOutputs) bed(ctx context.Context, path string) (*bed.Writer, error) {
	out, err := o.create(ctx, path)
	if out == nil || err != nil {
		return nil, err
	}
	w := bed.NewWriter(out)
	o.closers[len(o.closers)-1] = flushThenClose(w.Flush, o.closers[len(o.closers)-1])
	return w, nil
}

func (o *sideOutputs) tsv(ctx context.Context, path string) (*tsv.Writer, error) {
	out, err := o.create(ctx, path)
	if out == nil || err != nil {
		return nil, err
	}
	w := tsv.NewWriter(out)
	o.closers[len(o.closers)-1] = flushThenClose(w.Flush, o.closers[len(o.closers)-1])
	return w, nil
}

func flushThenClose(flush, closeFn func() error) func() error {
	return func() error {
		e := errors.Once{}
		e.Set(flush())
		e.Set(closeFn())
		return e.Err()
	}
}

func (o *sideOutputs) Close() error {
	e := errors.Once{}
	for _, c := range o.closers {
		e.Set(c())
	}
	o.closers = nil
	return e.Err()
}

// checkDistinct fails if any path is listed twice. Stdin may appear once.
func checkDistinct(paths []string) error {
	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			return errors.E(errors.Invalid, fmt.Sprintf("input %s given more than once", p))
		}
		seen[p] = true
	}
	return nil
}

// unsorted returns the *locus.UnsortedError underlying err, if any.
func unsorted(err error) *locus.UnsortedError {
	for err != nil {
		switch e := err.(type) {
		case *locus.UnsortedError:
			return e
		case *errors.Error:
			err = e.Err
		default:
			cause := pkgerrors.Cause(err)
			if cause == err {
				return nil
			}
			err = cause
		}
	}
	return nil
}

// exitCode maps err to the process exit code and writes a one-line
// diagnostic to stderr.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	if code, ok := err.(cmdline.ErrExitCode); ok {
		// Usage errors have already been reported by cmdline.
		if err == cmdline.ErrUsage {
			return exitError
		}
		return int(code)
	}
	if u := unsorted(err); u != nil {
		fmt.Fprintln(stderr, u.Error())
		return exitUnsorted
	}
	fmt.Fprintf(stderr, "bio-stream: %s\n", strings.Replace(err.Error(), "\n", " ", -1))
	if textio.NotFound(err) {
		return exitNotFound
	}
	return exitError
}

func newRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-stream",
		Short:    "Streaming operations on sorted BED and VCF files",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdSort(),
			newCmdBEDMerge(),
			newCmdIntersect(),
			newCmdVCFMerge(),
			newCmdVCFFilter(),
			newCmdVCFSiteFilter(),
			newCmdSNVConcordance(),
		},
	}
}

// Run runs the command line args and returns the process exit code.
func Run(env *cmdline.Env, args []string) int {
	golog.SetFlags(golog.Ldate | golog.Ltime)
	cmdline.HideGlobalFlagsExcept()
	r, rest, err := cmdline.Parse(newRoot(), env, args)
	if err == nil {
		err = r.Run(env, rest)
	}
	if err != nil && log.At(log.Debug) {
		log.Debug.Printf("%+v", err)
	}
	return exitCode(err, env.Stderr)
}

func runner(fn func(ctx context.Context, env *cmdline.Env, args []string) error) cmdline.Runner {
	return cmdutil.RunnerFunc(func(env *cmdline.Env, args []string) error {
		return fn(vcontext.Background(), env, args)
	})
}
