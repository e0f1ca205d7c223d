package trace

// TraceSummary aggregates statistics from a Recorder.
type TraceSummary struct {
	TotalBatches       int
	FailedBatches      int
	TotalItems         int
	MeanBatchItems     float64
	MeanBatchMembers   float64
	MaxBatchItems      int
	CloseReasons       map[string]int // close reason → batches
	TotalDecisions     int
	EmptyDecisions     int
	UniqueTargets      int
	TargetDistribution map[string]int // instance ID → requests routed there
}

// Summarize computes aggregate statistics from a Recorder.
// Safe for nil or empty recorders (returns zero-value fields).
func Summarize(r *Recorder) *TraceSummary {
	summary := &TraceSummary{
		CloseReasons:       make(map[string]int),
		TargetDistribution: make(map[string]int),
	}
	if r == nil {
		return summary
	}

	batches := r.Batches()
	summary.TotalBatches = len(batches)
	totalMembers := 0
	for _, b := range batches {
		summary.CloseReasons[b.Reason]++
		summary.TotalItems += b.Items
		totalMembers += b.Members
		if b.Items > summary.MaxBatchItems {
			summary.MaxBatchItems = b.Items
		}
		if b.Error != "" {
			summary.FailedBatches++
		}
	}
	if len(batches) > 0 {
		summary.MeanBatchItems = float64(summary.TotalItems) / float64(len(batches))
		summary.MeanBatchMembers = float64(totalMembers) / float64(len(batches))
	}

	routings := r.Routings()
	summary.TotalDecisions = len(routings)
	for _, rr := range routings {
		if rr.ChosenInstance == "" {
			summary.EmptyDecisions++
			continue
		}
		summary.TargetDistribution[rr.ChosenInstance]++
	}
	summary.UniqueTargets = len(summary.TargetDistribution)

	return summary
}
