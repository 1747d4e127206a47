package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biostream/encoding/vcf"
	"github.com/grailbio/biostream/vcfmerge"
	"v.io/x/lib/cmdline"
)

// listFlag collects the values of a repeated flag.
type listFlag []string

func (f *listFlag) String() string { return strings.Join(*f, ",") }

func (f *listFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

type vcfMergeFlags struct {
	commonFlags
	mergeSamples   *bool
	clearFilters   *bool
	samplePriority *string
	strategy       *string
	consensus      *string
	suffixes       listFlag
}

func newCmdVCFMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "vcf-merge",
		Short: "Merge sorted multi-sample VCF files",
		Long: `
vcf-merge combines sorted VCF files into one. Records of different inputs
at the same chromosome, position and REF become one record whose ALT, ID and
FILTER columns are the union of the inputs', and whose samples are the union
of the inputs' samples.

The strategy file given by -M has one rule per line, of the form
section.FIELD=rule, where section is "info" (the default) or "format".
Rules: first, earliest, enforce-equal, enforce-equal-unordered, ignore, sum,
uniq-concat, per-alt-delimited-list. Lines starting with # are comments.`,
		ArgsName: "input...",
	}
	flags := vcfMergeFlags{
		commonFlags:    addCommonFlags(cmd),
		mergeSamples:   cmd.Flags.Bool("s", false, "Allow a sample to appear in several inputs and merge its data"),
		clearFilters:   cmd.Flags.Bool("c", false, "Clear the FILTER column of merged records"),
		samplePriority: cmd.Flags.String("P", "o", "With -s, which input's data wins for a sample: o (input order), u (unfiltered first), f (filtered first)"),
		strategy:       cmd.Flags.String("M", "", "Merge strategy file"),
		consensus:      cmd.Flags.String("R", "", "Consensus filter, as ratio,name,description"),
	}
	cmd.Flags.Var(&flags.suffixes, "D", "file=suffix: append suffix to the sample names of one input. May be repeated")
	cmd.Runner = runner(func(ctx context.Context, env *cmdline.Env, args []string) error {
		if len(args) == 0 {
			return env.UsageErrorf("vcf-merge needs at least one input")
		}
		return runVCFMerge(ctx, flags, args)
	})
	return cmd
}

// parseSuffixes maps each -D value to its input. The suffix follows the
// last '=', so paths may contain '='.
func parseSuffixes(values []string, paths []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	suffixes := make([]string, len(paths))
	for _, v := range values {
		i := strings.LastIndexByte(v, '=')
		if i <= 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("-D %q: want file=suffix", v))
		}
		path, suffix := v[:i], v[i+1:]
		found := false
		for j, p := range paths {
			if p == path {
				suffixes[j] = suffix
				found = true
			}
		}
		if !found {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("-D %q: %s is not an input", v, path))
		}
	}
	return suffixes, nil
}

func (f vcfMergeFlags) options(ctx context.Context, paths []string) (vcfmerge.Options, error) {
	opts := vcfmerge.Options{
		MergeSamples: *f.mergeSamples,
		ClearFilters: *f.clearFilters,
	}
	var err error
	if opts.SamplePriority, err = vcfmerge.ParseSamplePriority(*f.samplePriority); err != nil {
		return opts, err
	}
	if opts.SampleSuffixes, err = parseSuffixes(f.suffixes, paths); err != nil {
		return opts, err
	}
	if *f.consensus != "" {
		if opts.Consensus, err = vcfmerge.ParseConsensus(*f.consensus); err != nil {
			return opts, err
		}
	}
	if *f.strategy != "" {
		in := &inputs{}
		defer in.Close() // nolint: errcheck
		r, err := in.open(ctx, *f.strategy)
		if err != nil {
			return opts, err
		}
		if opts.Strategy, err = vcfmerge.ParseStrategy(r, *f.strategy); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func runVCFMerge(ctx context.Context, flags vcfMergeFlags, paths []string) (err error) {
	if err := checkDistinct(paths); err != nil {
		return err
	}
	order, err := flags.order(ctx)
	if err != nil {
		return err
	}
	opts, err := flags.options(ctx, paths)
	if err != nil {
		return err
	}
	in := &inputs{}
	defer func() {
		if e := in.Close(); e != nil && err == nil {
			err = e
		}
	}()
	readers := make([]*vcf.Reader, len(paths))
	for i, path := range paths {
		r, err := in.open(ctx, path)
		if err != nil {
			return err
		}
		if readers[i], err = vcf.NewReader(r, path, i); err != nil {
			return err
		}
	}
	m, err := vcfmerge.NewMerger(readers, order, opts)
	if err != nil {
		return err
	}
	return withOutput(ctx, *flags.output, func(out io.Writer) error {
		w := vcf.NewWriter(out, m.Header())
		n := 0
		for m.Scan() {
			if err := w.Write(m.Record()); err != nil {
				return err
			}
			n++
		}
		if err := m.Err(); err != nil {
			return err
		}
		log.Printf("vcf-merge: wrote %d records from %d inputs", n, len(paths))
		return w.Flush()
	})
}
