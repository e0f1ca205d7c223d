package serve

// LoadReader reports the current load of a replica at pick time.
type LoadReader interface {
	// Load returns the replica's ongoing request count; ok is false when the
	// replica is no longer known.
	Load(id string) (load int, ok bool)
}

// LeastLoadedPicker makes the final pick among the candidates of a
// RoutingDecision. Loads are read fresh from a LoadReader at pick time, not
// from the snapshot the decision was made on, so concurrent dispatchers
// see each other's in-flight work.
//
// Load signal: ongoing requests on the replica (submitted, not yet resolved).
// Ties are broken by first occurrence in decision order, which keeps a
// single-candidate decision (uniform policy) a pass-through.
type LeastLoadedPicker struct {
	loads LoadReader
}

// NewLeastLoadedPicker creates a picker reading loads from loads.
func NewLeastLoadedPicker(loads LoadReader) *LeastLoadedPicker {
	return &LeastLoadedPicker{loads: loads}
}

// Pick returns the least-loaded candidate that the LoadReader still knows.
// ok is false for an empty decision or when every candidate has vanished.
func (p *LeastLoadedPicker) Pick(decision RoutingDecision) (Replica, bool) {
	var (
		best    Replica
		bestLen int
		found   bool
	)
	for _, c := range decision.Candidates {
		load, ok := p.loads.Load(c.ID)
		if !ok {
			continue
		}
		if !found || load < bestLen {
			best, bestLen, found = c, load, true
		}
	}
	if found {
		best.Load = bestLen
	}
	return best, found
}
