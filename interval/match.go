package interval

import (
	"strings"

	"github.com/grailbio/biostream/encoding/bed"
)

// MatchPolicy decides whether two intervals that the merge-join found
// intersecting count as a match.
type MatchPolicy int

const (
	// Overlap accepts any intersecting pair.
	Overlap MatchPolicy = iota
	// ExactPos requires identical start and stop.
	ExactPos
	// ExactAllele requires identical position and REF/ALT alleles.
	ExactAllele
	// IUBMatch requires identical position and REF, and ALT alleles that
	// agree under IUB ambiguity codes.
	IUBMatch
)

func (p MatchPolicy) String() string {
	switch p {
	case ExactPos:
		return "exact-pos"
	case ExactAllele:
		return "exact-allele"
	case IUBMatch:
		return "iub-match"
	}
	return "overlap"
}

// Alleles splits the REF/ALT payload in the first extra column. "-" denotes
// the empty allele of an insertion or deletion.
func Alleles(iv bed.Interval) (ref, alt string, ok bool) {
	if len(iv.Extra) == 0 {
		return "", "", false
	}
	slash := strings.IndexByte(iv.Extra[0], '/')
	if slash < 0 {
		return "", "", false
	}
	ref, alt = iv.Extra[0][:slash], iv.Extra[0][slash+1:]
	if ref == "-" {
		ref = ""
	}
	if alt == "-" {
		alt = ""
	}
	return ref, alt, true
}

func positionMatch(a, b bed.Interval) bool {
	return a.Chrom == b.Chrom && a.Start == b.Start && a.Stop == b.Stop
}

// Matches reports whether a and b, already known to intersect, match.
func (p MatchPolicy) Matches(a, b bed.Interval) bool {
	if p == Overlap {
		return true
	}
	if !positionMatch(a, b) {
		return false
	}
	if p == ExactPos {
		return true
	}
	refA, altA, okA := Alleles(a)
	refB, altB, okB := Alleles(b)
	if !okA || !okB || refA != refB {
		return false
	}
	if p == IUBMatch {
		return altA == altB || IUBOverlap(altA, altB)
	}
	return altA == altB
}
