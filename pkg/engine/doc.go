// Package engine wraps the containerd client SDK into the Container
// Engine contract: create/start/stop/delete a runtime container,
// ensure its network exists, sample non-streaming CPU and memory
// stats for pressure calculation, and pull or import images for the
// image resolver. Extends a basic create/start/stop wrapper with
// label-based listing, resource conversions and image-progress
// reporting.
package engine
