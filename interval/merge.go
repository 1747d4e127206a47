package interval

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biostream/encoding/bed"
)

// Source is a sorted stream of intervals; *bed.Reader implements it.
type Source interface {
	Scan() bool
	Record() bed.Interval
	Err() error
}

// Merger collapses intervals that overlap or lie within a distance of each
// other into one interval spanning [min start, max stop) of the run. The
// input must be sorted; Merger relies on its source to check that.
//
//   m, err := interval.NewMerger(r, 0)
//   for m.Scan() {
//     w.Write(m.Record())
//   }
//   err = m.Err()
type Merger struct {
	src      Source
	distance int
	// run is the interval being grown; valid iff active.
	run    bed.Interval
	active bool
	rec    bed.Interval
	err    error
}

// NewMerger returns a merger over src. Intervals merge when the gap between
// the end of the current run and the next start is at most distance, so 0
// merges intervals that overlap or abut.
func NewMerger(src Source, distance int) (*Merger, error) {
	if distance < 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("merge distance must be >= 0, got %d", distance))
	}
	return &Merger{src: src, distance: distance}, nil
}

func (m *Merger) mergeable(iv bed.Interval) bool {
	return iv.Chrom == m.run.Chrom && iv.Start-m.run.Stop <= m.distance
}

// Scan produces the next merged interval.
func (m *Merger) Scan() bool {
	if m.err != nil {
		return false
	}
	for m.src.Scan() {
		iv := m.src.Record()
		if !m.active {
			m.run = bed.Interval{Chrom: iv.Chrom, Start: iv.Start, Stop: iv.Stop}
			m.active = true
			continue
		}
		if m.mergeable(iv) {
			// A contained interval must not shrink the run.
			if iv.Stop > m.run.Stop {
				m.run.Stop = iv.Stop
			}
			continue
		}
		m.rec = m.run
		m.run = bed.Interval{Chrom: iv.Chrom, Start: iv.Start, Stop: iv.Stop}
		return true
	}
	if m.err = m.src.Err(); m.err != nil {
		return false
	}
	if m.active {
		m.rec = m.run
		m.active = false
		return true
	}
	return false
}

// Record returns the interval produced by the last successful Scan.
func (m *Merger) Record() bed.Interval { return m.rec }

// Err returns the source error, if any.
func (m *Merger) Err() error { return m.err }
