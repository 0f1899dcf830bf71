// Package events is an in-memory pub/sub bus for UI-facing orchestrator
// events (run lifecycle transitions, proxy route availability, runtime
// offline notices). Publish is non-blocking; slow subscribers drop
// events rather than stall the dispatcher.
package events
