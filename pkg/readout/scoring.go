package readout

// Score returns the heuristic confidence for a reading of d that produced n numbers.
//
// The compact score is not capped and exceeds 1.0 when more than four numbers
// were parsed; the extended score is capped at 1.0.
func Score(d Display, n int) float64 {
	if n <= 0 {
		return 0
	}
	if d == Extended {
		s := float64(n) / float64(len(extendedLayout))
		if s > 1 {
			s = 1
		}
		return s
	}
	return float64(n) / float64(len(compactLayout))
}
