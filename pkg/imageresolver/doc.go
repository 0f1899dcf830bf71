// Package imageresolver implements the Image Resolver: it guarantees a
// container image reference is locally available before the lifecycle
// manager spawns a runtime from it, never resolving the same reference
// twice concurrently either within this process (a per-image mutex) or
// across control-plane instances (a distributed lease). Per-image
// state tracks resolution cooldowns using the same expiring-map idiom
// as a token-TTL cache.
package imageresolver
