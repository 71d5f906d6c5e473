package fec

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pitscout/fountain/internal/protocol"
)

// DegreeDistribution draws the number of source blocks combined into one packet.
type DegreeDistribution interface {
	// Sample returns a degree in [1, k].
	Sample(r *rand.Rand) int
}

// robustSoliton samples degrees from the robust soliton distribution by inverting its CDF.
type robustSoliton struct {
	// cdf[d-1] is P(degree <= d)
	cdf []float64
}

var _ DegreeDistribution = &robustSoliton{}

// NewRobustSoliton builds the robust soliton distribution over [1, k].
// c scales the spike and the low-degree mass, delta bounds the decoding failure probability.
func NewRobustSoliton(k int, c, delta float64) DegreeDistribution {
	if k <= 1 {
		return &robustSoliton{cdf: []float64{1}}
	}
	kf := float64(k)
	r := c * math.Log(kf/delta) * math.Sqrt(kf)
	pivot := int(math.Floor(kf / r))
	if pivot < 1 {
		pivot = 1
	}
	if pivot > k {
		pivot = k
	}

	weights := make([]float64, k)
	var sum float64
	for d := 1; d <= k; d++ {
		var rho, tau float64
		if d == 1 {
			rho = 1 / kf
		} else {
			rho = 1 / (float64(d) * float64(d-1))
		}
		switch {
		case d < pivot:
			tau = r / (float64(d) * kf)
		case d == pivot:
			tau = math.Max(0, r*math.Log(r/delta)/kf)
		}
		weights[d-1] = rho + tau
		sum += rho + tau
	}

	cdf := make([]float64, k)
	var acc float64
	for i, w := range weights {
		acc += w / sum
		cdf[i] = acc
	}
	cdf[k-1] = 1
	return &robustSoliton{cdf: cdf}
}

func (s *robustSoliton) Sample(r *rand.Rand) int {
	u := r.Float64()
	return sort.SearchFloat64s(s.cdf, u) + 1
}

// distributionFor returns the degree distribution a profile uses for k source blocks.
func distributionFor(profile protocol.Profile, k int) DegreeDistribution {
	params := profile.Params()
	return NewRobustSoliton(k, params.C, params.Delta)
}
