// Package trace provides decision-trace recording for batching and routing analysis.
// This package has no dependencies on serve/ or serve/cluster/: it stores pure data types.
package trace

import "time"

// BatchRecord captures one dispatched batch.
type BatchRecord struct {
	Replica  string
	BatchID  uint64
	Members  int
	Items    int
	Reason   string        // why the batch closed: size, overflow, timeout, passthrough, flush
	Wait     time.Duration // first member accepted → batch closed
	Slack    time.Duration // formation deadline minus close time; 0 when the timer fired
	Duration time.Duration // compute call duration
	Error    string        // empty on success
}

// RoutingRecord captures a single routing decision and the final pick.
type RoutingRecord struct {
	RequestID      string
	Policy         string
	Candidates     []string // decision candidates in order; empty when nothing was available
	ChosenInstance string   // "" when the decision was empty
	Reason         string
	Attempt        int // 1-based dispatch attempt that produced this decision
}
