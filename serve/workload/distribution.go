package workload

import (
	"fmt"
	"math"
)

// NormSource is the randomness a LengthSampler draws from.
type NormSource interface {
	NormFloat64() float64
}

// LengthSampler generates per-request item counts.
type LengthSampler interface {
	// Sample returns a non-negative item count.
	Sample(rng NormSource) int
}

// GaussianSampler produces clamped Gaussian item counts.
// Min may be 0: zero-item requests are valid.
type GaussianSampler struct {
	mean, stdDev float64
	min, max     int
}

// NewGaussianSampler validates and creates a GaussianSampler.
func NewGaussianSampler(mean, stdDev float64, minItems, maxItems int) (*GaussianSampler, error) {
	if minItems < 0 || maxItems < minItems {
		return nil, fmt.Errorf("invalid item bounds [%d, %d]", minItems, maxItems)
	}
	if stdDev < 0 {
		return nil, fmt.Errorf("stddev must be non-negative, got %f", stdDev)
	}
	return &GaussianSampler{mean: mean, stdDev: stdDev, min: minItems, max: maxItems}, nil
}

func (s *GaussianSampler) Sample(rng NormSource) int {
	if s.min == s.max {
		return s.min
	}
	val := rng.NormFloat64()*s.stdDev + s.mean
	clamped := math.Min(float64(s.max), math.Max(float64(s.min), val))
	return int(math.Round(clamped))
}
