// Package store is the durable progress store for closing transactions.
//
// Backed by SQLite (WAL mode, single writer connection), it owns four kinds
// of state keyed by transaction id: step progress, task progress, step
// details, and uploaded-document records, plus an append-only transition log
// used for auditing and replay verification.
//
// Mutations that belong to one logical state transition run inside a Unit so
// the status change, its details, and its audit record commit atomically.
// Status updates are compare-and-set: the caller names the status it
// observed, and a mismatch returns ErrStale instead of clobbering
// concurrent work. A terminal completed status can only be changed through
// the explicit ForceStepStatus override.
package store
