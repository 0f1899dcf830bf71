// Package dispatch implements the Run Dispatcher and Event Listener:
// admission control and job composition against a leased runtime, the
// single-backend proxy route table, the per-runtime event hub
// subscription loop, and failed-run retry scheduling. The route table
// is reverse-proxy mechanics reduced to a single-backend, TTL-scoped
// route instead of a multi-ingress table.
package dispatch
