package serve

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ReplicaState is the availability of a replica as seen in one snapshot.
type ReplicaState int

const (
	ReplicaAvailable ReplicaState = iota
	ReplicaDraining
	ReplicaUnavailable
)

// String implements fmt.Stringer.
func (s ReplicaState) String() string {
	switch s {
	case ReplicaAvailable:
		return "available"
	case ReplicaDraining:
		return "draining"
	case ReplicaUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("ReplicaState(%d)", int(s))
	}
}

// Replica is a read-only view of one backend instance, taken from the
// replica snapshot provider for a single routing decision.
type Replica struct {
	ID    string
	State ReplicaState
	Load  int // opaque queue-depth signal; policies ignore it, pickers may read it
}

// Available reports whether the replica may receive new work.
func (r Replica) Available() bool {
	return r.State == ReplicaAvailable
}

// RouteRequest is the view of a pending request handed to routing policies.
type RouteRequest struct {
	ID          string
	NumItems    int
	ArrivalTime time.Time
}

// RoutingDecision is the router output for one request: candidates in
// order, the first being primary. An empty decision means no replica is
// currently serviceable; it is a valid result, not an error.
type RoutingDecision struct {
	Candidates []Replica
	Policy     string
	Reason     string // human-readable explanation
}

// Empty reports whether no replica was selected.
func (d RoutingDecision) Empty() bool {
	return len(d.Candidates) == 0
}

// Primary returns the first candidate.
func (d RoutingDecision) Primary() (Replica, bool) {
	if d.Empty() {
		return Replica{}, false
	}
	return d.Candidates[0], true
}

// IDs returns candidate IDs in decision order.
func (d RoutingDecision) IDs() []string {
	ids := make([]string, len(d.Candidates))
	for i, c := range d.Candidates {
		ids[i] = c.ID
	}
	return ids
}

// RoutingPolicy selects candidate replicas for a request.
// Implementations filter out unavailable replicas themselves, never mutate
// the candidate slice, keep no state besides their random source and must
// be safe for concurrent use.
type RoutingPolicy interface {
	Choose(candidates []Replica, req RouteRequest) RoutingDecision
	Name() string
}

const (
	// PolicyUniform picks one available replica uniformly at random.
	PolicyUniform = "uniform"
	// PolicyPowerOfK samples K distinct available replicas for a later pick.
	PolicyPowerOfK = "power_of_k"

	// DefaultK is the power-of-k sample size.
	DefaultK = 2
)

// validRoutingPolicies is the set of recognized routing policy names.
// Shared by RoutingConfig.Validate and NewRoutingPolicy.
var validRoutingPolicies = map[string]bool{"": true, PolicyUniform: true, PolicyPowerOfK: true}

// IsValidRoutingPolicy returns true if name is a recognized policy.
// Empty string defaults to uniform.
func IsValidRoutingPolicy(name string) bool {
	return validRoutingPolicies[name]
}

// ValidRoutingPolicyNames returns the recognized non-empty policy names, sorted.
func ValidRoutingPolicyNames() []string {
	names := make([]string, 0, len(validRoutingPolicies))
	for name := range validRoutingPolicies {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FilterAvailable returns the available replicas in their original order.
// The result is always a fresh slice, so callers may reorder it.
func FilterAvailable(candidates []Replica) []Replica {
	available := make([]Replica, 0, len(candidates))
	for _, c := range candidates {
		if c.Available() {
			available = append(available, c)
		}
	}
	return available
}

// NewRoutingPolicy creates a routing policy from cfg, drawing randomness from rng.
func NewRoutingPolicy(cfg RoutingConfig, rng Source) (RoutingPolicy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}
	switch cfg.Policy {
	case "", PolicyUniform:
		return NewUniformRandom(rng), nil
	case PolicyPowerOfK:
		return NewPowerOfK(cfg.K, rng), nil
	default:
		return nil, fmt.Errorf("%w: unhandled routing policy %q", ErrInvalidConfig, cfg.Policy)
	}
}

type activePolicy struct {
	cfg    RoutingConfig
	policy RoutingPolicy
}

// Router applies the configured RoutingPolicy. The policy sits behind an
// atomic pointer: Choose takes no lock and Reconfigure swaps policies at
// runtime without disturbing decisions in progress.
type Router struct {
	rng     Source
	metrics *Metrics
	active  atomic.Pointer[activePolicy]
}

// NewRouter creates a Router. m may be nil.
func NewRouter(cfg RoutingConfig, rng Source, m *Metrics) (*Router, error) {
	r := &Router{rng: rng, metrics: m}
	if err := r.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Choose produces the routing decision for req from a snapshot of candidates.
func (r *Router) Choose(candidates []Replica, req RouteRequest) RoutingDecision {
	p := r.active.Load()
	decision := p.policy.Choose(candidates, req)
	r.metrics.observeRouting(p.policy.Name(), decision.Empty())
	return decision
}

// Reconfigure switches to the policy described by cfg. On error the current
// policy stays in force.
func (r *Router) Reconfigure(cfg RoutingConfig) error {
	policy, err := NewRoutingPolicy(cfg, r.rng)
	if err != nil {
		return err
	}
	if old := r.active.Swap(&activePolicy{cfg: cfg, policy: policy}); old != nil {
		logrus.Infof("routing reconfigured: policy %s -> %s (k=%d)", old.policy.Name(), policy.Name(), cfg.K)
	}
	return nil
}

// Config returns the active routing configuration.
func (r *Router) Config() RoutingConfig {
	return r.active.Load().cfg
}
