package retrieval

import "math"

// Normalizer returns a z-score function fitted to scores. A zero standard
// deviation is replaced by 1, and an empty list yields the identity.
func Normalizer(scores []float64) func(float64) float64 {
	var mean, variance float64
	if n := float64(len(scores)); n > 0 {
		for _, s := range scores {
			mean += s
		}
		mean /= n
		for _, s := range scores {
			d := s - mean
			variance += d * d
		}
		variance /= n
	}

	std := math.Sqrt(variance)
	if std == 0 {
		std = 1
	}
	return func(raw float64) float64 {
		return (raw - mean) / std
	}
}
