package vcffilter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/biostream/encoding/vcf"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "##fileformat=VCFv4.1\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\tS2\tS3\n"

func run(t *testing.T, f Filter, lines ...string) (string, Stats) {
	r, err := vcf.NewReader(strings.NewReader(header+strings.Join(lines, "\n")+"\n"), "in.vcf", 0)
	require.NoError(t, err)
	var out bytes.Buffer
	stats, err := Run(r, &out, f)
	require.NoError(t, err)
	return out.String(), stats
}

func body(out string) []string {
	var recs []string
	for _, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if !strings.HasPrefix(line, "#") {
			recs = append(recs, line)
		}
	}
	return recs
}

func TestDepth(t *testing.T) {
	out, stats := run(t, &Depth{Min: 10},
		"1\t5\t.\tA\tC\t.\t.\t.\tGT:DP\t0/1:12\t0/1:9\t1/1:.",
		"1\t6\t.\tA\tC\t.\t.\t.\tGT:DP\t0/1:3\t.\t0/1:9",
		"1\t7\t.\tA\tC\t.\t.\t.\tGT\t0/1\t0/1\t0/1")
	expect.EQ(t, body(out), []string{
		"1\t5\t.\tA\tC\t.\t.\t.\tGT:DP\t0/1:12\t.\t.",
		"1\t7\t.\tA\tC\t.\t.\t.\tGT\t0/1\t0/1\t0/1",
	})
	expect.EQ(t, stats, Stats{Kept: 2, Dropped: 1})
}

func TestSite(t *testing.T) {
	f, err := NewSite(0.5)
	require.NoError(t, err)
	var warnings []string
	f.Warn = func(msg string) { warnings = append(warnings, msg) }
	expect.EQ(t, f.Name(), "sf50")
	out, stats := run(t, f,
		"1\t5\t.\tA\tC\t.\t.\t.\tGT:FT\t0/1:bad\t0/1:bad\t0/1:PASS",
		"1\t6\t.\tA\tC\t.\tq10\t.\tGT:FT\t0/1:bad\t0/1:PASS\t.",
		"1\t7\t.\tA\tC\t.\t.\t.\tGT\t0/1\t0/1\t0/1",
		"1\t8\t.\tA\tC\t.\tPASS\t.\tGT:FT\t0/1:bad\t0/1:.\t./.:PASS")
	expect.EQ(t, body(out), []string{
		"1\t5\t.\tA\tC\t.\tsf50\t.\tGT:FT\t0/1:bad\t0/1:bad\t0/1:PASS",
		// Exactly half is not more than half.
		"1\t6\t.\tA\tC\t.\tq10\t.\tGT:FT\t0/1:bad\t0/1:PASS\t.",
		"1\t8\t.\tA\tC\t.\tPASS\t.\tGT:FT\t0/1:bad\t0/1:.\t./.:PASS",
	})
	expect.EQ(t, stats, Stats{Kept: 3, Dropped: 1})
	require.Len(t, warnings, 1)
	expect.EQ(t, warnings[0], "No per-sample filter field available for line 5")
	assert.Contains(t, out, `##FILTER=<ID=sf50,Description="More than 50% samples with data failed the per-sample filter">`)
}

func TestSiteName(t *testing.T) {
	for _, tt := range []struct {
		frac float64
		want string
	}{
		{0.25, "sf25"},
		{0.1, "sf10"},
		{0.333, "sf33"},
		{0, "sf0"},
	} {
		f, err := NewSite(tt.frac)
		require.NoError(t, err)
		expect.EQ(t, f.Name(), tt.want)
	}
	_, err := NewSite(1.5)
	assert.Error(t, err)
}
