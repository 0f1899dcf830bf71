// Package lease implements the distributed Lease Coordinator:
// TryAcquire(key, ttl) (*Lease, error), backed by a narrow
// Raft-replicated state machine rather than a general cluster-state
// FSM, reduced to a single concern: who holds which named lease, until
// when.
//
// Leases named in this codebase: "worker-scale" (serializes scale-out
// decisions across control-plane instances) and "worker-reconciler"
// (ensures only one instance runs the reconciliation loop at a time).
// Image-resolution locking uses "image-resolve:<ref>" per image.
package lease
