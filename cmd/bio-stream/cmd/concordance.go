package cmd

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biostream/concordance"
	"github.com/grailbio/biostream/interval"
	"v.io/x/lib/cmdline"
)

func newCmdSNVConcordance() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "snv-concordance",
		Short: "Compare two sorted BED files of SNV calls",
		Long: `
snv-concordance intersects two sorted BED files of SNV calls and reports how
the calls of b agree with those of a, by zygosity and call type. The fourth
column of each line is REF/CALL, where CALL is an IUB code, followed by the
call quality and read depth. The report lists, for each category of a, the
number of calls, then the hits per match type with their mean quality (or
depth with -d).`,
		ArgsName: "a b",
	}
	common := addCommonFlags(cmd)
	useDepth := cmd.Flags.Bool("d", false, "Average read depth rather than quality")
	hits := cmd.Flags.String("hits", "", "Write matched pairs of calls to this path")
	missA := cmd.Flags.String("miss-a", "", "Write calls of a with no match to this path")
	missB := cmd.Flags.String("miss-b", "", "Write calls of b with no match to this path")
	cmd.Runner = runner(func(ctx context.Context, env *cmdline.Env, args []string) (err error) {
		if len(args) != 2 {
			return env.UsageErrorf("snv-concordance takes two input paths, but got %v", args)
		}
		if args[0] == args[1] {
			return errors.E(errors.Invalid, "input files have the same name: "+args[0])
		}
		order, err := common.order(ctx)
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
		a, err := in.openBED(ctx, args[0], order)
		if err != nil {
			return err
		}
		b, err := in.openBED(ctx, args[1], order)
		if err != nil {
			return err
		}
		report := concordance.NewReport(*useDepth)
		if report.Hits, err = side.tsv(ctx, *hits); err != nil {
			return err
		}
		if report.UnmatchedA, err = side.bed(ctx, *missA); err != nil {
			return err
		}
		if report.UnmatchedB, err = side.bed(ctx, *missB); err != nil {
			return err
		}
		if err := interval.NewIntersector(a, b, order, interval.IntersectOptions{}).Run(report); err != nil {
			return err
		}
		return withOutput(ctx, *common.output, func(out io.Writer) error {
			return report.Write(out)
		})
	})
	return cmd
}
