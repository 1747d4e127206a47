package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biostream/encoding/bed"
	"github.com/grailbio/biostream/encoding/textio"
	"github.com/grailbio/biostream/encoding/vcf"
	"github.com/grailbio/biostream/locus"
	"github.com/grailbio/biostream/sorter"
	"v.io/x/lib/cmdline"
)

type sortFlags struct {
	commonFlags
	mergeOnly   *bool
	stable      *bool
	unique      *bool
	vcf         *bool
	maxRecords  *int
	compression *string
	tmpDir      *string
}

func newCmdSort() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "sort",
		Short: "Sort BED or VCF files",
		Long: `
Sort reads one or more BED or VCF files and writes their records in
chromosome and position order. Inputs whose path contains ".vcf" are read as
VCF; others as BED. At most -M records are held in memory; beyond that,
sorted runs are spilled to temporary files and merged at the end.`,
		ArgsName: "input...",
	}
	flags := sortFlags{
		commonFlags: addCommonFlags(cmd),
		mergeOnly:   cmd.Flags.Bool("m", false, "Inputs are already sorted; only merge them"),
		stable:      cmd.Flags.Bool("s", false, "Keep the input order of records with equal positions"),
		unique:      cmd.Flags.Bool("u", false, "Drop duplicate records"),
		vcf:         cmd.Flags.Bool("vcf", false, "Read all inputs, including stdin, as VCF"),
		maxRecords:  cmd.Flags.Int("M", sorter.DefaultMaxRecords, "Maximum number of records held in memory"),
		compression: cmd.Flags.String("C", "s", "Compression of spilled runs: n (none), s (snappy), or z (zstd)"),
		tmpDir:      cmd.Flags.String("tmp-dir", "", "Directory for spilled runs. Defaults to the system temp directory"),
	}
	cmd.Runner = runner(func(ctx context.Context, env *cmdline.Env, args []string) error {
		if len(args) == 0 {
			args = []string{textio.Stdio}
		}
		return runSort(ctx, flags, args)
	})
	return cmd
}

func isVCF(path string) bool {
	return strings.Contains(path, ".vcf")
}

// iterator is the common view of a sorter.Sorter output and a
// sorter.MergeSorted output.
type iterator interface {
	Scan() bool
	Record() interface{}
	Err() error
}

func runSort(ctx context.Context, flags sortFlags, paths []string) (err error) {
	if err := checkDistinct(paths); err != nil {
		return err
	}
	compression, err := sorter.ParseCompression(*flags.compression)
	if err != nil {
		return err
	}
	if *flags.maxRecords <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("-M must be positive, got %d", *flags.maxRecords))
	}
	order, err := flags.order(ctx)
	if err != nil {
		return err
	}
	opts := sorter.Options{
		MaxRecords:  *flags.maxRecords,
		Stable:      *flags.stable,
		Unique:      *flags.unique,
		TmpDir:      *flags.tmpDir,
		Compression: compression,
	}
	useVCF := *flags.vcf
	for _, p := range paths {
		if isVCF(p) {
			useVCF = true
		}
	}

	in := &inputs{}
	defer func() {
		if e := in.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var (
		srcs   []sorter.Source
		codec  sorter.Codec
		header *vcf.Header
	)
	for i, path := range paths {
		r, err := in.open(ctx, path)
		if err != nil {
			return err
		}
		if !useVCF {
			srcs = append(srcs, sorter.BEDSource{Reader: bed.NewReader(r, path)})
			codec = sorter.BEDCodec{}
			continue
		}
		vr, err := vcf.NewReader(r, path, i)
		if err != nil {
			return err
		}
		if header, err = unionHeader(header, vr.Header(), path); err != nil {
			return err
		}
		srcs = append(srcs, sorter.VCFSource{Reader: vr})
		codec = sorter.VCFCodec{}
	}

	var it iterator
	if *flags.mergeOnly {
		for _, src := range srcs {
			switch s := src.(type) {
			case sorter.BEDSource:
				s.CheckSorted(order)
			case sorter.VCFSource:
				s.CheckSorted(order)
			}
		}
		merged := sorter.MergeSorted(order, codec, opts, srcs)
		defer func() {
			if e := merged.Close(); e != nil && err == nil {
				err = e
			}
		}()
		it = merged
	} else {
		if header != nil {
			observeContigs(order, header)
		}
		s := sorter.New(order, codec, opts)
		defer func() {
			if e := s.Close(); e != nil && err == nil {
				err = e
			}
		}()
		for _, src := range srcs {
			for src.Scan() {
				if err := s.Add(src.Record()); err != nil {
					return err
				}
			}
			if err := src.Err(); err != nil {
				return err
			}
		}
		sorted, err := s.Iterator()
		if err != nil {
			return err
		}
		log.Printf("sort: %d inputs, %d spilled runs", len(paths), s.NumRuns())
		it = sorted
	}
	return withOutput(ctx, *flags.output, func(w io.Writer) error {
		return writeSorted(w, header, it)
	})
}

func writeSorted(out io.Writer, header *vcf.Header, it iterator) error {
	if header != nil {
		w := vcf.NewWriter(out, header)
		for it.Scan() {
			if err := w.Write(it.Record().(*vcf.Record)); err != nil {
				return err
			}
		}
		if err := it.Err(); err != nil {
			return err
		}
		return w.Flush()
	}
	w := bed.NewWriter(out)
	for it.Scan() {
		if err := w.Write(it.Record().(bed.Interval)); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return w.Flush()
}

// unionHeader adds the meta lines of h to acc. All inputs of a sort must
// list the same samples.
func unionHeader(acc, h *vcf.Header, path string) (*vcf.Header, error) {
	if acc == nil {
		return h.Clone(), nil
	}
	if strings.Join(acc.Samples, "\t") != strings.Join(h.Samples, "\t") {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: samples differ from the first input", path))
	}
	for _, m := range h.Meta {
		acc.Add(m)
	}
	return acc, nil
}

// observeContigs ranks the header's contigs before any record is seen.
func observeContigs(order *locus.Order, h *vcf.Header) {
	order.Declare(h.Contigs())
}
