// Package jobs persists pipeline jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, interrupted-job recovery, and the status transitions that mirror
// the public job state machine. Every job row embeds its step records, a
// bounded append-only event log, the original request, and the terminal
// result or failure, so readers get a complete snapshot from a single row.
//
// All writes flow through single-row statements; read-modify-write updates
// serialize on a per-job mutex. Terminal rows are immutable. The database is
// treated as transient storage for in-flight and recent jobs rather than a
// long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package jobs
