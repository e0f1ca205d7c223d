package serve

import "fmt"

// UniformRandom routes each request to one available replica chosen with
// uniform probability.
type UniformRandom struct {
	rng Source
}

// NewUniformRandom creates a UniformRandom policy.
func NewUniformRandom(rng Source) *UniformRandom {
	return &UniformRandom{rng: rng}
}

// Name implements RoutingPolicy.
func (u *UniformRandom) Name() string {
	return PolicyUniform
}

// Choose implements RoutingPolicy for UniformRandom.
func (u *UniformRandom) Choose(candidates []Replica, _ RouteRequest) RoutingDecision {
	available := FilterAvailable(candidates)
	if len(available) == 0 {
		return RoutingDecision{Policy: PolicyUniform, Reason: "uniform: no available replica"}
	}
	idx := u.rng.Intn(len(available))
	return RoutingDecision{
		Candidates: []Replica{available[idx]},
		Policy:     PolicyUniform,
		Reason:     fmt.Sprintf("uniform[%d/%d]", idx, len(available)),
	}
}

// PowerOfK samples K distinct available replicas uniformly without
// replacement. The final pick among them is left to the caller (see
// LeastLoadedPicker). With fewer than K available replicas all of them are
// returned.
type PowerOfK struct {
	k   int
	rng Source
}

// NewPowerOfK creates a PowerOfK policy. Panics if k < 1; configs reach it
// through NewRoutingPolicy, which validates k first.
func NewPowerOfK(k int, rng Source) *PowerOfK {
	if k < 1 {
		panic(fmt.Sprintf("power_of_k: k must be >= 1, got %d", k))
	}
	return &PowerOfK{k: k, rng: rng}
}

// Name implements RoutingPolicy.
func (p *PowerOfK) Name() string {
	return PolicyPowerOfK
}

// K returns the sample size.
func (p *PowerOfK) K() int {
	return p.k
}

// Choose implements RoutingPolicy for PowerOfK.
func (p *PowerOfK) Choose(candidates []Replica, _ RouteRequest) RoutingDecision {
	available := FilterAvailable(candidates)
	n := len(available)
	k := min(p.k, n)
	if k == 0 {
		return RoutingDecision{Policy: PolicyPowerOfK, Reason: "power-of-k: no available replica"}
	}

	// Partial Fisher-Yates: after step i, available[:i+1] is a uniform
	// sample without replacement. available is our own copy.
	for i := 0; i < k; i++ {
		j := i + p.rng.Intn(n-i)
		available[i], available[j] = available[j], available[i]
	}

	return RoutingDecision{
		Candidates: available[:k:k],
		Policy:     PolicyPowerOfK,
		Reason:     fmt.Sprintf("power-of-%d (%d available)", p.k, n),
	}
}
