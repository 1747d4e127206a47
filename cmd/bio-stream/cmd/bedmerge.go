package cmd

import (
	"context"
	"io"

	"github.com/grailbio/biostream/encoding/bed"
	"github.com/grailbio/biostream/encoding/textio"
	"github.com/grailbio/biostream/interval"
	"github.com/grailbio/biostream/sorter"
	"v.io/x/lib/cmdline"
)

func newCmdBEDMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "bed-merge",
		Short: "Merge overlapping intervals of sorted BED files",
		Long: `
bed-merge collapses intervals that overlap, abut, or lie within -d bases of
each other into one interval. Several sorted inputs are merged into one
stream first.`,
		ArgsName: "input...",
	}
	common := addCommonFlags(cmd)
	distance := cmd.Flags.Int("d", 0, "Merge intervals separated by at most this many bases")
	cmd.Runner = runner(func(ctx context.Context, env *cmdline.Env, args []string) error {
		if len(args) == 0 {
			args = []string{textio.Stdio}
		}
		return runBEDMerge(ctx, common, *distance, args)
	})
	return cmd
}

// intervalIterator adapts a sorter.Iterator over BED records to an
// interval.Source.
type intervalIterator struct {
	*sorter.Iterator
}

func (it intervalIterator) Record() bed.Interval { return it.Iterator.Record().(bed.Interval) }

func runBEDMerge(ctx context.Context, common commonFlags, distance int, paths []string) (err error) {
	if err := checkDistinct(paths); err != nil {
		return err
	}
	order, err := common.order(ctx)
	if err != nil {
		return err
	}
	in := &inputs{}
	defer func() {
		if e := in.Close(); e != nil && err == nil {
			err = e
		}
	}()
	var src interval.Source
	if len(paths) == 1 {
		if src, err = in.openBED(ctx, paths[0], order); err != nil {
			return err
		}
	} else {
		srcs := make([]sorter.Source, len(paths))
		for i, path := range paths {
			r, err := in.openBED(ctx, path, order)
			if err != nil {
				return err
			}
			srcs[i] = sorter.BEDSource{Reader: r}
		}
		it := sorter.MergeSorted(order, sorter.BEDCodec{}, sorter.Options{Stable: true}, srcs)
		defer it.Close() // nolint: errcheck
		src = intervalIterator{it}
	}
	m, err := interval.NewMerger(src, distance)
	if err != nil {
		return err
	}
	return withOutput(ctx, *common.output, func(out io.Writer) error {
		w := bed.NewWriter(out)
		for m.Scan() {
			if err := w.Write(m.Record()); err != nil {
				return err
			}
		}
		if err := m.Err(); err != nil {
			return err
		}
		return w.Flush()
	})
}
