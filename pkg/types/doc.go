// Package types defines the shared vocabulary of the websql module: the
// Bridge contract the engine drives, native and user-facing result shapes,
// the rollback Decision returned by statement error handlers, Config for
// the SQLite bridge, and the error kinds and sentinels every layer reports.
package types
