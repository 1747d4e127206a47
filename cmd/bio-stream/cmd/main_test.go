package cmd

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"v.io/x/lib/cmdline"
)

type runResult struct {
	code   int
	stderr string
}

func run(args ...string) runResult {
	var stdout, stderr bytes.Buffer
	env := &cmdline.Env{Stdout: &stdout, Stderr: &stderr, Vars: map[string]string{}}
	code := Run(env, args)
	return runResult{code, stderr.String()}
}

type testDir struct {
	t   *testing.T
	dir string
}

func (d testDir) path(name string) string { return filepath.Join(d.dir, name) }

func (d testDir) write(name, data string) string {
	path := d.path(name)
	require.NoError(d.t, ioutil.WriteFile(path, []byte(data), 0644))
	return path
}

func (d testDir) read(name string) string {
	data, err := ioutil.ReadFile(d.path(name))
	require.NoError(d.t, err)
	return string(data)
}

func (d testDir) body(name string) []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSuffix(d.read(name), "\n"), "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestBEDMerge(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	a := d.write("a.bed", "chr1\t10\t20\nchr1\t12\t15\nchr1\t40\t50\n")
	b := d.write("b.bed", "chr1\t14\t16\nchr1\t25\t30\nchr2\t1\t2\n")
	empty := d.write("empty.bed", "")

	r := run("bed-merge", "-o", d.path("out.bed"), a, b, empty)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("out.bed"), "chr1\t10\t20\nchr1\t25\t30\nchr1\t40\t50\nchr2\t1\t2\n")

	r = run("bed-merge", "-d", "10", "-o", d.path("out.bed"), a, b)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("out.bed"), "chr1\t10\t50\nchr2\t1\t2\n")

	r = run("bed-merge", "-d", "-1", "-o", d.path("out.bed"), a)
	expect.EQ(t, r.code, 1)
}

func TestSort(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	in := d.write("in.bed", "chr2\t5\t9\tx\nchr1\t3\t4\ty\nchr2\t1\t2\tz\nchr1\t3\t4\ty\nchr1\t0\t10\tw\n")
	empty := d.write("empty.bed", "")

	r := run("sort", "-o", d.path("big.bed"), in, empty)
	require.Equal(t, 0, r.code, r.stderr)
	r = run("sort", "-M", "2", "-tmp-dir", tmpDir, "-o", d.path("small.bed"), in)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("small.bed"), d.read("big.bed"))
	expect.EQ(t, d.body("big.bed"), []string{
		"chr2\t1\t2\tz", "chr2\t5\t9\tx", "chr1\t0\t10\tw", "chr1\t3\t4\ty", "chr1\t3\t4\ty",
	})

	r = run("sort", "-u", "-chrom-order", "natural", "-o", d.path("uniq.bed"), in)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.body("uniq.bed"), []string{
		"chr1\t0\t10\tw", "chr1\t3\t4\ty", "chr2\t1\t2\tz", "chr2\t5\t9\tx",
	})

	// Re-sorting sorted output is a no-op.
	r = run("sort", "-o", d.path("again.bed"), d.path("big.bed"))
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("again.bed"), d.read("big.bed"))

	// Merge-only mode rejects unsorted input.
	r = run("sort", "-m", "-o", d.path("m.bed"), in)
	expect.EQ(t, r.code, 3)
	assert.Contains(t, r.stderr, "Unsorted data found in stream")

	r = run("sort", "-m", "-o", d.path("m.bed"), d.path("big.bed"), d.path("uniq.bed"))
	expect.EQ(t, r.code, 3, r.stderr)

	r = run("sort", "-m", "-o", d.path("m.bed"), d.path("big.bed"), d.path("again.bed"))
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, len(d.body("m.bed")), 10)
}

func TestSortVCF(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	header := "##fileformat=VCFv4.1\n##contig=<ID=2>\n##contig=<ID=1>\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n"
	in := d.write("in.vcf", header+
		"1\t5\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\n"+
		"2\t9\t.\tG\tT\t.\tPASS\t.\tGT\t1/1\n"+
		"1\t2\t.\tT\tG\t.\tPASS\t.\tGT\t0/1\n")
	r := run("sort", "-o", d.path("out.vcf"), in)
	require.Equal(t, 0, r.code, r.stderr)
	assert.True(t, strings.HasPrefix(d.read("out.vcf"), "##fileformat=VCFv4.1\n"))
	// Contigs set the chromosome order.
	expect.EQ(t, d.body("out.vcf"), []string{
		"2\t9\t.\tG\tT\t.\tPASS\t.\tGT\t1/1",
		"1\t2\t.\tT\tG\t.\tPASS\t.\tGT\t0/1",
		"1\t5\t.\tA\tC\t.\tPASS\t.\tGT\t0/1",
	})
}

func TestIntersect(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	a := d.write("a.bed", "chr1\t10\t20\tA/C\nchr1\t30\t40\tG/T\nchr1\t100\t101\tA/G\n")
	b := d.write("b.bed", "chr1\t15\t16\tA/C\nchr1\t18\t25\tA/C\nchr1\t100\t101\tA/R\nchr1\t200\t201\tC/T\n")

	r := run("intersect", "-o", d.path("out.bed"), "-miss-a", d.path("ma.bed"), "-miss-b", d.path("mb.bed"), a, b)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("out.bed"), "chr1\t10\t20\tA/C\nchr1\t100\t101\tA/G\n")
	expect.EQ(t, d.read("ma.bed"), "chr1\t30\t40\tG/T\n")
	expect.EQ(t, d.read("mb.bed"), "chr1\t200\t201\tC/T\n")

	r = run("intersect", "-output-both", "-o", d.path("both.bed"), a, b)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, len(d.body("both.bed")), 3)

	r = run("intersect", "-exact-allele", "-iub-match", "-o", d.path("iub.bed"), a, b)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("iub.bed"), "chr1\t100\t101\tA/G\n")

	r = run("intersect", "-exact-allele", "-o", d.path("exact.bed"), a, b)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("exact.bed"), "")

	r = run("intersect", "-iub-match", "-o", d.path("x.bed"), a, b)
	expect.EQ(t, r.code, 1)
	assert.Contains(t, r.stderr, "-iub-match requires -exact-allele")

	for _, args := range [][]string{
		{"-iub-match", a, b},
		{"-full", "-output-both", a, b},
		{"-format", "A9x", a, b},
		{a, a},
		{a},
		{"-bogus", a, b},
	} {
		r = run(append([]string{"intersect", "-o", d.path("x.bed")}, args...)...)
		expect.EQ(t, r.code, 1, "args %v: %s", args, r.stderr)
	}
}

func TestExitCodes(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	sorted := d.write("sorted.bed", "chr1\t1\t2\nchr1\t5\t6\n")
	unsorted := d.write("unsorted.bed", "chr1\t5\t6\nchr1\t1\t2\n")
	bad := d.write("bad.bed", "chr1\t5\tx\n")

	r := run("intersect", "-o", d.path("out.bed"), unsorted, sorted)
	expect.EQ(t, r.code, 3)
	assert.True(t, strings.HasPrefix(r.stderr, "Unsorted data found in stream "+unsorted), r.stderr)
	expect.EQ(t, strings.Count(r.stderr, "\n"), 1)

	r = run("bed-merge", "-o", d.path("out.bed"), unsorted)
	expect.EQ(t, r.code, 3)

	r = run("intersect", "-o", d.path("out.bed"), sorted, d.path("missing.bed"))
	expect.EQ(t, r.code, 2)
	assert.Contains(t, r.stderr, "missing.bed")

	r = run("bed-merge", "-o", d.path("out.bed"), bad)
	expect.EQ(t, r.code, 1)
	assert.Contains(t, r.stderr, "bad.bed")

	r = run("intersect", "-chrom-order", "chr2", "-o", d.path("out.bed"), sorted, sorted+"x")
	expect.EQ(t, r.code, 2)

	r = run("no-such-command")
	expect.EQ(t, r.code, 1)
}

func TestChromOrderFile(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	order := d.write("order.txt", "chrX\nchr1\n")
	in := d.write("in.bed", "chr1\t1\t2\nchrX\t1\t2\n")
	r := run("sort", "-chrom-order", "@"+order, "-o", d.path("out.bed"), in)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("out.bed"), "chrX\t1\t2\nchr1\t1\t2\n")

	in = d.write("other.bed", "chr1\t1\t2\nchr7\t1\t2\n")
	r = run("sort", "-chrom-order", "@"+order, "-o", d.path("out.bed"), in)
	expect.EQ(t, r.code, 1)
}

const vcfHeader = "##fileformat=VCFv4.1\n" +
	"##contig=<ID=1>\n" +
	"##INFO=<ID=DP,Number=1,Type=Integer,Description=\"Depth\">\n" +
	"##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Genotype\">\n" +
	"##FORMAT=<ID=FT,Number=1,Type=String,Description=\"Filter\">\n"

func vcfFile(samples string, lines ...string) string {
	return vcfHeader + "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t" + samples + "\n" +
		strings.Join(lines, "\n") + "\n"
}

func TestVCFMerge(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	a := d.write("a.vcf", vcfFile("S1", "1\t10\t.\tA\tC\t.\tPASS\tDP=3\tGT:FT\t0/1:PASS"))
	b := d.write("b.vcf", vcfFile("S1", "1\t10\t.\tA\tT\t.\tPASS\tDP=4\tGT:FT\t0/1:lowq"))
	strategy := d.write("strategy.txt", "# depth\ninfo.DP=sum\n")

	// Sample names collide without a suffix.
	r := run("vcf-merge", "-o", d.path("out.vcf"), a, b)
	expect.EQ(t, r.code, 1)

	r = run("vcf-merge", "-M", strategy, "-D", b+"=_b", "-R", "0.5,CONS,half filtered", "-o", d.path("out.vcf"), a, b)
	require.Equal(t, 0, r.code, r.stderr)
	out := d.read("out.vcf")
	assert.Contains(t, out, "\tFORMAT\tS1\tS1_b\n")
	assert.Contains(t, out, "##FILTER=<ID=CONS,")
	expect.EQ(t, d.body("out.vcf"), []string{"1\t10\t.\tA\tC,T\t.\tCONS\tDP=7\tGT:FT\t0/1:PASS\t0/2:lowq"})

	for _, args := range [][]string{
		{"-D", "c.vcf=_c", a, b},
		{"-D", "nosuffix", a, b},
		{"-R", "2,CONS,x", a, b},
		{"-P", "z", a, b},
		{"-M", d.write("bad.txt", "info.DP=frist\n"), "-s", a, b},
		{"-s", a, a},
		{},
	} {
		r = run(append([]string{"vcf-merge", "-o", d.path("x.vcf")}, args...)...)
		expect.EQ(t, r.code, 1, "args %v: %s", args, r.stderr)
	}
	r = run("vcf-merge", "-M", d.path("nostrategy.txt"), "-o", d.path("x.vcf"), a)
	expect.EQ(t, r.code, 2)
}

func TestSparseChromosomes(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	// sparse.bed never mentions chr1, which full.bed lists first.
	sparse := d.write("sparse.bed", "chr2\t5\t10\n")
	full := d.write("full.bed", "chr1\t1\t2\nchr2\t6\t7\nchr3\t1\t2\n")

	r := run("intersect", "-o", d.path("out.bed"), "-miss-b", d.path("mb.bed"), sparse, full)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("out.bed"), "chr2\t5\t10\n")
	expect.EQ(t, d.read("mb.bed"), "chr1\t1\t2\nchr3\t1\t2\n")

	r = run("bed-merge", "-o", d.path("merged.bed"), sparse, full)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("merged.bed"), "chr1\t1\t2\nchr2\t5\t10\nchr3\t1\t2\n")

	r = run("sort", "-m", "-o", d.path("m.bed"), sparse, full)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("m.bed"), "chr1\t1\t2\nchr2\t5\t10\nchr2\t6\t7\nchr3\t1\t2\n")

	// Inputs without contig lines.
	header := "##fileformat=VCFv4.1\n" +
		"##FORMAT=<ID=GT,Number=1,Type=String,Description=\"Genotype\">\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n"
	a := d.write("a.vcf", header+"2\t5\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\n")
	b := d.write("b.vcf", header+
		"1\t3\t.\tG\tT\t.\tPASS\t.\tGT\t1/1\n"+
		"2\t5\t.\tA\tC\t.\tPASS\t.\tGT\t0/1\n")
	r = run("vcf-merge", "-D", b+"=_b", "-o", d.path("out.vcf"), a, b)
	require.Equal(t, 0, r.code, r.stderr)
	var sites []string
	for _, line := range d.body("out.vcf") {
		f := strings.Split(line, "\t")
		sites = append(sites, f[0]+":"+f[1])
	}
	expect.EQ(t, sites, []string{"1:3", "2:5"})

	// Streams that really disagree still fail.
	swapped := d.write("swapped.bed", "chr2\t1\t2\nchr1\t1\t2\n")
	r = run("bed-merge", "-o", d.path("merged.bed"), full, swapped)
	expect.EQ(t, r.code, 3, r.stderr)
}

func TestVCFFilters(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	in := d.write("in.vcf", vcfFile("S1\tS2",
		"1\t10\t.\tA\tC\t.\t.\t.\tGT:FT\t0/1:bad\t0/1:bad",
		"1\t20\t.\tA\tC\t.\t.\t.\tGT:FT\t0/1:PASS\t0/1:bad"))
	r := run("vcf-site-filter", "-f", "0.5", "-o", d.path("out.vcf"), in)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.body("out.vcf"), []string{
		"1\t10\t.\tA\tC\t.\tsf50\t.\tGT:FT\t0/1:bad\t0/1:bad",
		"1\t20\t.\tA\tC\t.\tPASS\t.\tGT:FT\t0/1:PASS\t0/1:bad",
	})
	r = run("vcf-site-filter", "-f", "2", "-o", d.path("out.vcf"), in)
	expect.EQ(t, r.code, 1)

	in = d.write("dp.vcf", vcfFile("S1",
		"1\t10\t.\tA\tC\t.\t.\t.\tGT:DP\t0/1:3",
		"1\t20\t.\tA\tC\t.\t.\t.\tGT:DP\t0/1:30"))
	r = run("vcf-filter", "-d", "10", "-o", d.path("dp-out.vcf"), in)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.body("dp-out.vcf"), []string{"1\t20\t.\tA\tC\t.\t.\t.\tGT:DP\t0/1:30"})
}

func TestSNVConcordance(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup)
	d := testDir{t, tmpDir}
	a := d.write("a.bed", "chr1\t10\t11\tA/C\t30\t10\nchr1\t20\t21\tG/G\t10\t1\n")
	b := d.write("b.bed", "chr1\t10\t11\tA/C\t20\t8\nchr1\t30\t31\tT/T\t1\t1\n")
	r := run("snv-concordance", "-o", d.path("report.txt"), "-hits", d.path("hits.txt"),
		"-miss-a", d.path("ma.bed"), "-miss-b", d.path("mb.bed"), a, b)
	require.Equal(t, 0, r.code, r.stderr)
	expect.EQ(t, d.read("report.txt"), "homozygous snv\t1\n\tmatch\n\t\thomozygous snv\t1\t20.00\n")
	expect.EQ(t, d.read("hits.txt"), "chr1\t10\t11\tA/C\t30\t10\tchr1\t10\t11\tA/C\t20\t8\n")
	expect.EQ(t, d.read("ma.bed"), "chr1\t20\t21\tG/G\t10\t1\n")
	expect.EQ(t, d.read("mb.bed"), "chr1\t30\t31\tT/T\t1\t1\n")

	r = run("snv-concordance", "-o", d.path("report.txt"), a, a)
	expect.EQ(t, r.code, 1)
}

func TestParseSuffixes(t *testing.T) {
	got, err := parseSuffixes([]string{"a=b.vcf=_x"}, []string{"in.vcf", "a=b.vcf"})
	require.NoError(t, err)
	expect.EQ(t, got, []string{"", "_x"})
	got, err = parseSuffixes(nil, []string{"in.vcf"})
	require.NoError(t, err)
	expect.EQ(t, len(got), 0)
}
