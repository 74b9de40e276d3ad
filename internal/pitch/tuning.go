package pitch

import "math"

// ConcertA is the standard A4 reference.
const ConcertA = 440.0

// TuningReference maps freq onto the A4 reference its tuning implies: the
// deviation from the nearest 12-TET note (relative to A4 = 440 Hz) is
// applied to 440. The result lies in [427.47, 452.89] Hz (±50 cents).
// A 432 Hz-tuned recording yields about 432 whatever note dominates it.
func TuningReference(freq float64) float64 {
	if !(freq > 0) {
		return ConcertA
	}
	cents := 1200 * math.Log2(freq/ConcertA)
	dev := cents - 100*math.Round(cents/100)
	return ConcertA * math.Pow(2, dev/1200)
}
