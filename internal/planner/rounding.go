package planner

import (
	"math"
	"strconv"
)

// Rounder snaps a raw pitch ratio to a preferred value.
type Rounder interface {
	Round(ratio float64) float64
}

// Fraction is a ratio of small integers.
type Fraction struct {
	Num, Den int
}

// Value returns Num/Den.
func (f Fraction) Value() float64 { return float64(f.Num) / float64(f.Den) }

func (f Fraction) String() string {
	return strconv.Itoa(f.Num) + "/" + strconv.Itoa(f.Den)
}

// FractionTable is a Rounder that snaps to the nearest entry, measured in
// cents so that ratios above and below 1 are treated alike. Ties keep the
// earlier entry.
type FractionTable []Fraction

// Round returns the value of the nearest fraction, or ratio itself when the
// table is empty or ratio is not positive.
func (t FractionTable) Round(ratio float64) float64 {
	f, ok := t.Nearest(ratio)
	if !ok {
		return ratio
	}
	return f.Value()
}

// Nearest returns the fraction closest to ratio.
func (t FractionTable) Nearest(ratio float64) (Fraction, bool) {
	if len(t) == 0 || !(ratio > 0) {
		return Fraction{}, false
	}
	best, bestDist := t[0], math.Inf(1)
	for _, f := range t {
		if d := math.Abs(math.Log2(ratio / f.Value())); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best, true
}

// DefaultFractions covers the common retuning ratios (432/440 = 54/55, the
// syntonic and diesis commas) and the just intervals out to an octave either
// way.
var DefaultFractions = withInverses(FractionTable{
	{1, 1},
	{80, 81}, {63, 64}, {54, 55}, {44, 45}, {35, 36}, {24, 25},
	{15, 16}, {8, 9}, {5, 6}, {4, 5}, {3, 4}, {2, 3}, {1, 2},
})

func withInverses(t FractionTable) FractionTable {
	out := make(FractionTable, 0, 2*len(t))
	for _, f := range t {
		out = append(out, f)
		if f.Num != f.Den {
			out = append(out, Fraction{f.Den, f.Num})
		}
	}
	return out
}
