// Package log wraps zerolog for structured logging across the
// orchestrator. Init configures the global Logger once at startup;
// WithComponent and friends derive child loggers carrying a fixed set
// of fields (component, node_id, service_id, task_id, run_id,
// runtime_id, image_ref) through a call
// chain without threading a logger argument everywhere.
package log
