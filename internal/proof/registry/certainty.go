package registry

import "math"

// Evidence reliability split used when presenting scores. It never feeds the
// certainty coefficient.
const (
	VerifiedReliability    = 0.9
	DeclarativeReliability = 0.3
)

// NormalizedSum divides the weights of verified sources by the weight of all
// source types. Unverified sources contribute nothing.
func NormalizedSum(sources []Source) float64 {
	verified := 0.0
	for _, s := range sources {
		if s.Verified {
			verified += Weight(s.Type)
		}
	}
	return clampUnit(verified / TotalWeight())
}

// EvidenceReliability is the mean reliability of a mix of verified and
// declarative items. It is 0 when both counts are 0.
func EvidenceReliability(verified, declarative int) float64 {
	verified, declarative = max(verified, 0), max(declarative, 0)
	n := verified + declarative
	if n == 0 {
		return 0
	}
	return (VerifiedReliability*float64(verified) + DeclarativeReliability*float64(declarative)) / float64(n)
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
