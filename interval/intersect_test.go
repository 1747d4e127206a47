package interval

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/biostream/encoding/bed"
	"github.com/grailbio/biostream/locus"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type intersectResult struct {
	out, missA, missB string
}

func runIntersect(t *testing.T, a, b, format string, opts IntersectOptions) (intersectResult, error) {
	order := locus.NewObservedOrder()
	f, err := ParseFormat(format)
	require.NoError(t, err)
	var out, missA, missB bytes.Buffer
	tw := tsv.NewWriter(&out)
	o := NewOutput(tw, f)
	o.UnmatchedA = bed.NewWriter(&missA)
	o.UnmatchedB = bed.NewWriter(&missB)
	x := NewIntersector(newReader("a.bed", a, order), newReader("b.bed", b, order), order, opts)
	err = x.Run(o)
	require.NoError(t, tw.Flush())
	require.NoError(t, o.UnmatchedA.Flush())
	require.NoError(t, o.UnmatchedB.Flush())
	return intersectResult{out.String(), missA.String(), missB.String()}, err
}

func TestIntersectOverlap(t *testing.T) {
	a := "chr1\t10\t20\tx\nchr1\t30\t40\tlong\nchr1\t100\t110\nchr2\t5\t6\n"
	b := "chr1\t0\t5\nchr1\t15\t35\nchr1\t38\t39\nchr1\t39\t50\nchr2\t5\t6\nchr3\t1\t2\n"
	got, err := runIntersect(t, a, b, FormatA, IntersectOptions{})
	require.NoError(t, err)
	expect.EQ(t, got.out, "chr1\t10\t20\tx\nchr1\t30\t40\tlong\nchr2\t5\t6\n")
	expect.EQ(t, got.missA, "chr1\t100\t110\n")
	expect.EQ(t, got.missB, "chr1\t0\t5\nchr3\t1\t2\n")

	got, err = runIntersect(t, a, b, FormatBoth, IntersectOptions{})
	require.NoError(t, err)
	expect.EQ(t, got.out,
		"chr1\t10\t20\tx\tchr1\t15\t35\n"+
			"chr1\t30\t40\tlong\tchr1\t15\t35\n"+
			"chr1\t30\t40\tlong\tchr1\t38\t39\n"+
			"chr1\t30\t40\tlong\tchr1\t39\t50\n"+
			"chr2\t5\t6\tchr2\t5\t6\n")

	got, err = runIntersect(t, a, b, FormatFull, IntersectOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.out, "chr1\t15\t20\tchr1\t10\t20\tx\tchr1\t15\t35\n"), "got %q", got.out)
}

func TestIntersectOutputBothCardinality(t *testing.T) {
	// Every A overlaps every B.
	a := "chr1\t0\t100\nchr1\t1\t100\nchr1\t2\t100\n"
	b := "chr1\t50\t60\nchr1\t51\t60\n"
	got, err := runIntersect(t, a, b, FormatBoth, IntersectOptions{})
	require.NoError(t, err)
	expect.EQ(t, strings.Count(got.out, "\n"), 6)

	got, err = runIntersect(t, a, b, FormatBoth, IntersectOptions{FirstOnly: true})
	require.NoError(t, err)
	expect.EQ(t, got.out, "chr1\t0\t100\tchr1\t50\t60\nchr1\t1\t100\tchr1\t50\t60\nchr1\t2\t100\tchr1\t50\t60\n")
	// The second B is not reported as a hit, but it did match, so it is not a miss.
	expect.EQ(t, got.missB, "")

	// A B that only matches after another B stays out of the misses too.
	got, err = runIntersect(t, "chr1\t0\t100\n", "chr1\t10\t20\nchr1\t30\t40\nchr1\t200\t210\n", FormatBoth, IntersectOptions{FirstOnly: true})
	require.NoError(t, err)
	expect.EQ(t, got.out, "chr1\t0\t100\tchr1\t10\t20\n")
	expect.EQ(t, got.missB, "chr1\t200\t210\n")
}

func TestIntersectSelf(t *testing.T) {
	in := "chr1\t0\t10\nchr1\t5\t15\nchr2\t0\t0\nchr2\t3\t9\n"
	got, err := runIntersect(t, in, in, FormatA, IntersectOptions{Policy: ExactPos})
	require.NoError(t, err)
	expect.EQ(t, got.out, in)
	expect.EQ(t, got.missA, "")
	expect.EQ(t, got.missB, "")
}

func TestIntersectExactPosSubset(t *testing.T) {
	a := "chr1\t0\t10\nchr1\t20\t30\nchr1\t40\t45\n"
	b := "chr1\t0\t10\nchr1\t22\t28\nchr1\t40\t46\n"
	overlap, err := runIntersect(t, a, b, FormatBoth, IntersectOptions{})
	require.NoError(t, err)
	exact, err := runIntersect(t, a, b, FormatBoth, IntersectOptions{Policy: ExactPos})
	require.NoError(t, err)
	expect.EQ(t, exact.out, "chr1\t0\t10\tchr1\t0\t10\n")
	for _, line := range strings.SplitAfter(exact.out, "\n") {
		assert.Contains(t, overlap.out, line)
	}
	// Containment is not an exact match.
	expect.EQ(t, exact.missA, "chr1\t20\t30\nchr1\t40\t45\n")
}

func TestIntersectAlleles(t *testing.T) {
	a := "chr1\t9\t10\tA/G\nchr1\t19\t20\tC/R\nchr1\t29\t30\tT/-\n"
	b := "chr1\t9\t10\tA/T\nchr1\t19\t20\tC/A\nchr1\t29\t30\tT/-\n"
	got, err := runIntersect(t, a, b, FormatA, IntersectOptions{Policy: ExactAllele})
	require.NoError(t, err)
	expect.EQ(t, got.out, "chr1\t29\t30\tT/-\n")

	got, err = runIntersect(t, a, b, FormatA, IntersectOptions{Policy: IUBMatch})
	require.NoError(t, err)
	expect.EQ(t, got.out, "chr1\t19\t20\tC/R\nchr1\t29\t30\tT/-\n")
	expect.EQ(t, got.missA, "chr1\t9\t10\tA/G\n")
}

func TestIntersectInsertions(t *testing.T) {
	a := "chr1\t10\t10\n"
	b := "chr1\t5\t10\nchr1\t10\t10\nchr1\t10\t20\n"
	got, err := runIntersect(t, a, b, FormatBoth, IntersectOptions{})
	require.NoError(t, err)
	// Only the identical insertion intersects.
	expect.EQ(t, got.out, "chr1\t10\t10\tchr1\t10\t10\n")

	got, err = runIntersect(t, a, b, FormatBoth, IntersectOptions{AdjacentInsertions: true})
	require.NoError(t, err)
	expect.EQ(t, got.out,
		"chr1\t10\t10\tchr1\t5\t10\n"+
			"chr1\t10\t10\tchr1\t10\t10\n"+
			"chr1\t10\t10\tchr1\t10\t20\n")
	expect.EQ(t, got.missB, "")
}

func TestIntersectUnsorted(t *testing.T) {
	_, err := runIntersect(t, "chr1\t10\t20\nchr1\t5\t8\n", "chr1\t0\t100\n", FormatA, IntersectOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream a.bed")

	_, err = runIntersect(t, "chr1\t10\t20\n", "chr1\t10\t20\nchr1\t1\t2\n", FormatA, IntersectOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream b.bed")

	// The streams disagree on chromosome order.
	_, err = runIntersect(t, "chr1\t1\t2\nchr2\t1\t2\n", "chr2\t1\t2\nchr1\t1\t2\n", FormatA, IntersectOptions{})
	require.Error(t, err)
	_, ok := err.(*locus.UnsortedError)
	assert.True(t, ok, "got %v", err)
}

func TestIntersectSparseChromosomes(t *testing.T) {
	// a lacks the chromosome b starts with.
	got, err := runIntersect(t, "chr2\t5\t10\n", "chr1\t1\t2\nchr2\t6\t7\n", FormatA, IntersectOptions{})
	require.NoError(t, err)
	expect.EQ(t, got.out, "chr2\t5\t10\n")
	expect.EQ(t, got.missB, "chr1\t1\t2\n")

	// b lacks the chromosome a starts with.
	got, err = runIntersect(t, "chr1\t1\t2\nchr2\t5\t10\n", "chr2\t6\t7\n", FormatA, IntersectOptions{})
	require.NoError(t, err)
	expect.EQ(t, got.out, "chr2\t5\t10\n")
	expect.EQ(t, got.missA, "chr1\t1\t2\n")

	// Both streams agree on an order that is not natural.
	got, err = runIntersect(t, "chrM\t3\t4\nchr1\t1\t2\n", "chrM\t1\t9\nchr1\t0\t5\nchr1\t7\t8\n", FormatA, IntersectOptions{})
	require.NoError(t, err)
	expect.EQ(t, got.out, "chrM\t3\t4\nchr1\t1\t2\n")
	expect.EQ(t, got.missB, "chr1\t7\t8\n")
}

func TestMatchPolicy(t *testing.T) {
	iv := func(start, stop int, extra ...string) bed.Interval {
		return bed.Interval{Chrom: "chr1", Start: start, Stop: stop, Extra: extra}
	}
	tests := []struct {
		policy MatchPolicy
		a, b   bed.Interval
		want   bool
	}{
		{Overlap, iv(0, 10), iv(5, 6), true},
		{ExactPos, iv(0, 10), iv(5, 6), false},
		{ExactPos, iv(0, 10, "x"), iv(0, 10), true},
		{ExactAllele, iv(0, 1, "A/C"), iv(0, 1, "A/C"), true},
		{ExactAllele, iv(0, 1, "A/C"), iv(0, 1, "A/M"), false},
		{ExactAllele, iv(0, 1, "A/C"), iv(0, 1), false},
		{ExactAllele, iv(1, 1, "-/TT"), iv(1, 1, "-/TT"), true},
		{IUBMatch, iv(0, 1, "A/C"), iv(0, 1, "A/M"), true},
		{IUBMatch, iv(0, 1, "A/C"), iv(0, 1, "G/M"), false},
		{IUBMatch, iv(0, 2, "AA/CT"), iv(0, 2, "AA/MK"), true},
		{IUBMatch, iv(0, 2, "AA/CT"), iv(0, 2, "AA/MS"), false},
	}
	for _, tt := range tests {
		expect.EQ(t, tt.policy.Matches(tt.a, tt.b), tt.want, "%v %v %v", tt.policy, tt.a, tt.b)
	}
}

func TestIUB(t *testing.T) {
	expect.EQ(t, IUB('A'), BaseA)
	expect.EQ(t, IUB('r'), BaseA|BaseG)
	expect.EQ(t, IUB('N').Count(), 4)
	expect.EQ(t, IUB('B').String(), "CGT")
	expect.EQ(t, IUB('X'), Bases(0))
	expect.True(t, IUBOverlap("ACGT", "MSKN"))
	expect.False(t, IUBOverlap("ACGT", "ACG"))
}

func TestFormat(t *testing.T) {
	a := bed.Interval{Chrom: "chr1", Start: 10, Stop: 20, Extra: []string{"a3", "a4", "a5"}}
	b := bed.Interval{Chrom: "chr1", Start: 15, Stop: 30, Extra: []string{"b3"}}
	tests := []struct {
		format, want string
	}{
		{"A", "chr1\t10\t20\ta3\ta4\ta5\n"},
		{"B", "chr1\t15\t30\tb3\n"},
		{"I", "chr1\t15\t20\n"},
		{"A0,3-4 B1", "chr1\ta3\ta4\t15\n"},
		{"I A5 B3", "chr1\t15\t20\ta5\tb3\n"},
	}
	for _, tt := range tests {
		f, err := ParseFormat(tt.format)
		require.NoError(t, err, tt.format)
		var out bytes.Buffer
		w := tsv.NewWriter(&out)
		require.NoError(t, f.Write(w, a, b))
		require.NoError(t, w.Flush())
		expect.EQ(t, out.String(), tt.want, tt.format)
	}

	f, err := ParseFormat("B4")
	require.NoError(t, err)
	assert.Error(t, f.Write(tsv.NewWriter(&bytes.Buffer{}), a, b))

	for _, bad := range []string{"", "C", "A3-1", "Ax"} {
		_, err := ParseFormat(bad)
		assert.Error(t, err, bad)
	}
	f, _ = ParseFormat("A A3")
	expect.False(t, f.UsesB())
	f, _ = ParseFormat("A I")
	expect.True(t, f.UsesB())
}
