package trace

import "sync"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures all batch and routing decisions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// Recorder collects decision records. Safe for concurrent use; a nil
// *Recorder drops everything.
type Recorder struct {
	level TraceLevel

	mu       sync.Mutex
	batches  []BatchRecord
	routings []RoutingRecord
}

// NewRecorder creates a Recorder ready for recording at the given level.
func NewRecorder(level TraceLevel) *Recorder {
	return &Recorder{
		level:    level,
		batches:  make([]BatchRecord, 0),
		routings: make([]RoutingRecord, 0),
	}
}

// Enabled reports whether records are kept.
func (r *Recorder) Enabled() bool {
	return r != nil && r.level == TraceLevelDecisions
}

// RecordBatch appends a batch record.
func (r *Recorder) RecordBatch(record BatchRecord) {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, record)
}

// RecordRouting appends a routing decision record.
func (r *Recorder) RecordRouting(record RoutingRecord) {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routings = append(r.routings, record)
}

// Batches returns a copy of the batch records.
func (r *Recorder) Batches() []BatchRecord {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BatchRecord, len(r.batches))
	copy(out, r.batches)
	return out
}

// Routings returns a copy of the routing records.
func (r *Recorder) Routings() []RoutingRecord {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RoutingRecord, len(r.routings))
	copy(out, r.routings)
	return out
}
