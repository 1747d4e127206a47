package interval

import "strings"

// Bases is a set of nucleotides as a bitmask.
type Bases uint8

// Nucleotide bits.
const (
	BaseA Bases = 1 << iota
	BaseC
	BaseG
	BaseT
)

var iubCodes = [256]Bases{
	'A': BaseA,
	'C': BaseC,
	'G': BaseG,
	'T': BaseT,
	'M': BaseA | BaseC,
	'K': BaseG | BaseT,
	'Y': BaseC | BaseT,
	'R': BaseA | BaseG,
	'W': BaseA | BaseT,
	'S': BaseC | BaseG,
	'D': BaseA | BaseG | BaseT,
	'B': BaseC | BaseG | BaseT,
	'H': BaseA | BaseC | BaseT,
	'V': BaseA | BaseC | BaseG,
	'N': BaseA | BaseC | BaseG | BaseT,
}

// IUB returns the bases represented by an IUB ambiguity code, upper or lower
// case. Unknown codes map to the empty set.
func IUB(code byte) Bases {
	if code >= 'a' && code <= 'z' {
		code -= 'a' - 'A'
	}
	return iubCodes[code]
}

// Count returns the number of bases in the set.
func (b Bases) Count() int {
	n := 0
	for ; b != 0; b &= b - 1 {
		n++
	}
	return n
}

// String lists the bases in ACGT order.
func (b Bases) String() string {
	var s strings.Builder
	for i, c := range "ACGT" {
		if b&(1<<uint(i)) != 0 {
			s.WriteRune(c)
		}
	}
	return s.String()
}

// IUBOverlap reports whether two alleles of equal length can represent the
// same sequence, position by position, under IUB ambiguity codes.
func IUBOverlap(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if IUB(a[i])&IUB(b[i]) == 0 {
			return false
		}
	}
	return true
}
