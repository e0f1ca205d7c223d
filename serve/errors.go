package serve

import "errors"

var (
	// ErrBatchContractViolation means the compute function returned a result
	// count that differs from the flattened input count.
	ErrBatchContractViolation = errors.New("batch contract violation")

	// ErrComputeFailure wraps any error (or panic) raised by the compute function.
	ErrComputeFailure = errors.New("compute failure")

	// ErrNoAvailableReplica is returned by dispatchers once the router keeps
	// producing empty decisions past their retry budget.
	ErrNoAvailableReplica = errors.New("no available replica")

	// ErrInvalidConfig marks a rejected configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAggregatorClosed is returned for submissions after Close.
	ErrAggregatorClosed = errors.New("aggregator closed")
)
