// Package metrics computes agreement statistics over a state snapshot.
package metrics

import "slices"

// Discrepancy returns max(values) - min(values), or 0 for no values.
func Discrepancy(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return slices.Max(values) - slices.Min(values)
}

// Consensus reports whether the discrepancy is at most eps.
func Consensus(values []float64, eps float64) bool {
	return Discrepancy(values) <= eps
}
