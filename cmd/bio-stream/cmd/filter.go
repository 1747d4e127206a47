package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/biostream/encoding/textio"
	"github.com/grailbio/biostream/encoding/vcf"
	"github.com/grailbio/biostream/vcffilter"
	"v.io/x/lib/cmdline"
)

func newCmdVCFFilter() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "vcf-filter",
		Short:    "Clear VCF sample data with low read depth",
		ArgsName: "[input]",
	}
	common := addCommonFlags(cmd)
	minDepth := cmd.Flags.Int("d", 0, "Minimum per-sample read depth (FORMAT DP)")
	cmd.Runner = runner(func(ctx context.Context, env *cmdline.Env, args []string) error {
		path, err := singleInput(env, "vcf-filter", args)
		if err != nil {
			return err
		}
		if *minDepth < 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("-d must be >= 0, got %d", *minDepth))
		}
		return runVCFFilter(ctx, common, path, &vcffilter.Depth{Min: *minDepth})
	})
	return cmd
}

func newCmdVCFSiteFilter() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "vcf-site-filter",
		Short: "Filter VCF sites where too many samples fail their own filter",
		Long: `
vcf-site-filter adds the filter sfN to each site where more than the given
fraction of samples with data have a non-PASS FORMAT FT value, and PASS to
the others. N is the fraction as a percentage.`,
		ArgsName: "[input]",
	}
	common := addCommonFlags(cmd)
	maxFail := cmd.Flags.Float64("f", 1.0, "Fraction of failing samples above which a site is filtered")
	cmd.Runner = runner(func(ctx context.Context, env *cmdline.Env, args []string) error {
		path, err := singleInput(env, "vcf-site-filter", args)
		if err != nil {
			return err
		}
		f, err := vcffilter.NewSite(*maxFail)
		if err != nil {
			return err
		}
		return runVCFFilter(ctx, common, path, f)
	})
	return cmd
}

func singleInput(env *cmdline.Env, name string, args []string) (string, error) {
	switch len(args) {
	case 0:
		return textio.Stdio, nil
	case 1:
		return args[0], nil
	}
	return "", env.UsageErrorf("%s takes at most one input, but got %v", name, args)
}

func runVCFFilter(ctx context.Context, common commonFlags, path string, f vcffilter.Filter) (err error) {
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
	r, err := in.open(ctx, path)
	if err != nil {
		return err
	}
	vr, err := vcf.NewReader(r, path, 0)
	if err != nil {
		return err
	}
	vr.CheckSorted(order)
	return withOutput(ctx, *common.output, func(out io.Writer) error {
		stats, err := vcffilter.Run(vr, out, f)
		if err != nil {
			return err
		}
		log.Printf("%s: kept %d records, dropped %d", path, stats.Kept, stats.Dropped)
		return nil
	})
}
