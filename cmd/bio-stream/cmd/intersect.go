package cmd

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/biostream/interval"
	"v.io/x/lib/cmdline"
)

type intersectFlags struct {
	commonFlags
	exactPos           *bool
	exactAllele        *bool
	iubMatch           *bool
	adjacentInsertions *bool
	firstOnly          *bool
	outputBoth         *bool
	full               *bool
	format             *string
	missA, missB       *string
}

func newCmdIntersect() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "intersect",
		Short: "Intersect two sorted BED files",
		Long: `
intersect writes the intervals of A that match at least one interval of B.
By default intervals match when they overlap. With -output-both each match
is written as the A and B records side by side; -full also prefixes the
intersection. -format selects columns directly:

  I     chrom, start and stop of the intersection
  A, B  every column of the A or B record
  A3,5-7  selected columns of A (0-based: 0 chrom, 1 start, 2 stop)

Alleles for -exact-allele and -iub-match are read from the fourth column as
REF/ALT, where "-" is the empty allele. -iub-match only refines
-exact-allele; giving it alone is an error.`,
		ArgsName: "a b",
	}
	flags := intersectFlags{
		commonFlags:        addCommonFlags(cmd),
		exactPos:           cmd.Flags.Bool("exact-pos", false, "Match only intervals with identical start and stop"),
		exactAllele:        cmd.Flags.Bool("exact-allele", false, "Match only identical positions with identical alleles"),
		iubMatch:           cmd.Flags.Bool("iub-match", false, "Let IUB codes in B match any base they represent (requires -exact-allele)"),
		adjacentInsertions: cmd.Flags.Bool("adjacent-insertions", false, "Let zero-length insertions match intervals that start or stop at their position"),
		firstOnly:          cmd.Flags.Bool("first-only", false, "Report only the first match of each A interval"),
		outputBoth:         cmd.Flags.Bool("output-both", false, `Write each match as A and B; same as -format "A B"`),
		full:               cmd.Flags.Bool("full", false, `Write each match as intersection, A and B; same as -format "I A B"`),
		format:             cmd.Flags.String("format", "", "Output format, see above"),
		missA:              cmd.Flags.String("miss-a", "", "Write A intervals that matched nothing to this path"),
		missB:              cmd.Flags.String("miss-b", "", "Write B intervals that matched nothing to this path"),
	}
	cmd.Runner = runner(func(ctx context.Context, env *cmdline.Env, args []string) error {
		if len(args) != 2 {
			return env.UsageErrorf("intersect takes two input paths, but got %v", args)
		}
		return runIntersect(ctx, flags, args[0], args[1])
	})
	return cmd
}

func (f intersectFlags) options() (interval.IntersectOptions, error) {
	opts := interval.IntersectOptions{
		AdjacentInsertions: *f.adjacentInsertions,
		FirstOnly:          *f.firstOnly,
	}
	switch {
	case *f.iubMatch && !*f.exactAllele:
		return opts, errors.E(errors.Invalid, "-iub-match requires -exact-allele")
	case *f.iubMatch:
		opts.Policy = interval.IUBMatch
	case *f.exactAllele:
		opts.Policy = interval.ExactAllele
	case *f.exactPos:
		opts.Policy = interval.ExactPos
	default:
		opts.Policy = interval.Overlap
	}
	return opts, nil
}

func (f intersectFlags) formatter() (*interval.Formatter, error) {
	n := 0
	spec := interval.FormatA
	if *f.outputBoth {
		n++
		spec = interval.FormatBoth
	}
	if *f.full {
		n++
		spec = interval.FormatFull
	}
	if *f.format != "" {
		n++
		spec = *f.format
	}
	if n > 1 {
		return nil, errors.E(errors.Invalid, "-output-both, -full and -format are mutually exclusive")
	}
	return interval.ParseFormat(spec)
}

func runIntersect(ctx context.Context, flags intersectFlags, pathA, pathB string) (err error) {
	if pathA == pathB {
		return errors.E(errors.Invalid, "input files have the same name: "+pathA)
	}
	opts, err := flags.options()
	if err != nil {
		return err
	}
	format, err := flags.formatter()
	if err != nil {
		return err
	}
	order, err := flags.order(ctx)
	if err != nil {
		return err
	}
	in := &inputs{}
	side := &sideOutputs{}
	defer func() {
		e := errors.Once{}
		e.Set(err)
		e.Set(side.Close())
		e.Set(in.Close())
		err = e.Err()
	}()
	a, err := in.openBED(ctx, pathA, order)
	if err != nil {
		return err
	}
	b, err := in.openBED(ctx, pathB, order)
	if err != nil {
		return err
	}
	return withOutput(ctx, *flags.output, func(out io.Writer) error {
		w := tsv.NewWriter(out)
		o := interval.NewOutput(w, format)
		var err error
		if o.UnmatchedA, err = side.bed(ctx, *flags.missA); err != nil {
			return err
		}
		if o.UnmatchedB, err = side.bed(ctx, *flags.missB); err != nil {
			return err
		}
		if err := interval.NewIntersector(a, b, order, opts).Run(o); err != nil {
			return err
		}
		return w.Flush()
	})
}
