package layer

import (
	"golang.org/x/exp/rand"
)

// RNG is the deterministic source used for weight initialisation.
type RNG struct {
	r *rand.Rand
}

// NewRNG creates an RNG with the given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(seed))}
}

// Normal returns a standard normal sample.
func (g *RNG) Normal() float64 {
	return g.r.NormFloat64()
}

func (g *RNG) fillUniform(dst []float64, bound float64) {
	for i := range dst {
		dst[i] = g.r.Float64()*2*bound - bound
	}
}
