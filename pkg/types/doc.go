// Package types defines the data model shared by every component of the
// task-runtime orchestrator: the runtime registry's RuntimeEntry, the
// image resolver's ImageState, the lifecycle manager's DispatchBudget,
// and the dispatcher's Run/RunLogEvent/Finding/HarnessResultEnvelope.
//
// Types here are plain structs with typed-string-constant enums; they
// carry no behavior beyond small invariant-checking helpers
// (HasCapacity, InCooldown, Exhausted). Synchronization is the
// responsibility of the package holding the data (registry, resolver,
// budget tracker) — these types are not safe for concurrent mutation.
package types
