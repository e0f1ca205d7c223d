// Package serve provides the in-process batching and replica-routing layer
// of a model-serving process.
//
// # Reading Guide
//
// Start with these files:
//   - request.go: PendingRequest and its write-once Future
//   - batch.go: Batch membership, flatten and split
//   - aggregator.go: batch formation (count and timer triggers) and dispatch
//   - routing.go: RoutingPolicy, Router and the replica snapshot types
//
// # Architecture
//
// The serve package defines the core types and policies; collaborators live
// in sub-packages:
//   - serve/cluster/: in-process replica pool and the dispatcher that ties
//     routing, picking and batching together
//   - serve/api/: HTTP transport (items in, results out)
//   - serve/predict/: compute functions (upstream HTTP model server, echo)
//   - serve/reload/: config file watcher for hot reconfiguration
//   - serve/workload/: synthetic load generation for the bench command
//   - serve/trace/: batch and routing decision recording
//
// # Key Interfaces
//
//   - ComputeFunc: the batched model call, length preserving
//   - RoutingPolicy: select candidate replicas from a snapshot
//   - Source: injectable random source (see PartitionedRNG)
//   - LoadReader: fresh load signal for the final pick (LeastLoadedPicker)
//
// # Invariants
//
// Within a batch, flatten order equals arrival order equals split order, and
// every member receives exactly the results for its own items. A batch
// either succeeds for all members or fails all of them with the same error.
package serve
