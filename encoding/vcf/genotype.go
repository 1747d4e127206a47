package vcf

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NoCall is the allele index of a "." call.
const NoCall = -1

// Genotype is a parsed GT value such as "0/1" or "1|2".
type Genotype struct {
	// Alleles holds allele indices; 0 is the reference, NoCall is ".".
	Alleles []int
	// Seps[i] separates Alleles[i] and Alleles[i+1]: '/' or '|'.
	Seps []byte
}

// ParseGenotype parses a GT value.
func ParseGenotype(gt string) (Genotype, error) {
	var g Genotype
	start := 0
	for i := 0; i <= len(gt); i++ {
		if i < len(gt) && gt[i] != '/' && gt[i] != '|' {
			continue
		}
		tok := gt[start:i]
		if tok == Missing {
			g.Alleles = append(g.Alleles, NoCall)
		} else {
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 {
				return Genotype{}, errors.Errorf("malformed genotype %q", gt)
			}
			g.Alleles = append(g.Alleles, idx)
		}
		if i < len(gt) {
			g.Seps = append(g.Seps, gt[i])
		}
		start = i + 1
	}
	return g, nil
}

// Missing reports whether every allele is a no-call.
func (g Genotype) Missing() bool {
	for _, a := range g.Alleles {
		if a != NoCall {
			return false
		}
	}
	return true
}

// String formats the genotype.
func (g Genotype) String() string {
	var b strings.Builder
	for i, a := range g.Alleles {
		if i > 0 {
			b.WriteByte(g.Seps[i-1])
		}
		if a == NoCall {
			b.WriteString(Missing)
		} else {
			b.WriteString(strconv.Itoa(a))
		}
	}
	return b.String()
}
