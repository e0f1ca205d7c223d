package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilRecorder(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.TotalBatches)
	assert.Equal(t, 0, s.TotalDecisions)
	assert.NotNil(t, s.CloseReasons)
	assert.NotNil(t, s.TargetDistribution)
}

func TestSummarize_AggregatesBatchesAndRouting(t *testing.T) {
	// GIVEN a recorder with three batches and four routing records
	r := NewRecorder(TraceLevelDecisions)
	r.RecordBatch(BatchRecord{Members: 2, Items: 4, Reason: "size"})
	r.RecordBatch(BatchRecord{Members: 1, Items: 1, Reason: "timeout"})
	r.RecordBatch(BatchRecord{Members: 3, Items: 4, Reason: "size", Error: "compute failure"})
	r.RecordRouting(RoutingRecord{ChosenInstance: "replica_0"})
	r.RecordRouting(RoutingRecord{ChosenInstance: "replica_1"})
	r.RecordRouting(RoutingRecord{ChosenInstance: "replica_0"})
	r.RecordRouting(RoutingRecord{})

	// WHEN summarized
	s := Summarize(r)

	// THEN the batch statistics are aggregated
	assert.Equal(t, 3, s.TotalBatches)
	assert.Equal(t, 1, s.FailedBatches)
	assert.Equal(t, 9, s.TotalItems)
	assert.InDelta(t, 3.0, s.MeanBatchItems, 1e-9)
	assert.InDelta(t, 2.0, s.MeanBatchMembers, 1e-9)
	assert.Equal(t, 4, s.MaxBatchItems)
	assert.Equal(t, map[string]int{"size": 2, "timeout": 1}, s.CloseReasons)

	// AND the routing statistics count empty decisions separately
	assert.Equal(t, 4, s.TotalDecisions)
	assert.Equal(t, 1, s.EmptyDecisions)
	assert.Equal(t, 2, s.UniqueTargets)
	assert.Equal(t, map[string]int{"replica_0": 2, "replica_1": 1}, s.TargetDistribution)
}
