package delivery

import "math/rand/v2"

// pcgStream separates the PCG stream from the seed word.
const pcgStream = 0x9e3779b97f4a7c15

// NewRand returns the deterministic generator used for one repetition.
// Equal seeds yield identical sequences on every platform.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), pcgStream))
}

// bernoulli draws true with probability p.
func bernoulli(rng *rand.Rand, p float64) bool {
	return rng.Float64() < p
}
