// Package lifecycle implements the Runtime Lifecycle Manager:
// ground-truth refresh against the container engine, acquire-for-
// dispatch runtime selection, spawn, the scale-out budget,
// stop/drain/recycle/idle-shutdown, pressure calculation, and the
// reconciliation loop. The refresh and reconciliation loops share a
// ticker + single mutex + Start/Stop/stopCh shape; spawn is a linear
// sequence ending in bounded wait-ready polling.
package lifecycle
