// Package storage defines the Store interface and a BoltDB-backed
// implementation. Each entity type lives in its own bucket, keyed by
// ID, with JSON-encoded values — CreateX doubles as UpdateX (Put is
// idempotent). Run logs are nested one bucket per run, keyed by a
// zero-padded sequence number so ForEach yields them in order.
package storage
