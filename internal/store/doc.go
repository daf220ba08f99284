// Package store persists recap state and exposes the atomic operations the
// quota ledger and the batch pipeline depend on.
//
// One Store implementation serves two backends: the embedded sqlite driver
// (modernc.org/sqlite, the default) and postgres via the pgx stdlib adapter.
// Backend differences are isolated in the dialect type (placeholder syntax,
// greatest/max spelling) and in per-backend schema files; everything else is
// shared SQL. The sqlite backend additionally takes a flock on the data
// directory so two processes never share one database file.
//
// Capacity counters are mutated exclusively through AddConsumed-style
// statements (atomic increment/decrement in SQL), never read-modify-write at
// the caller. Entity rows are upserted on their natural key
// (account, content_id, run_scope) so re-running overlapping sources can
// never duplicate rows.
//
// Treat this package as the single source of truth for persistence
// semantics; when you add fields, update both schema files and bump
// schemaVersion.
package store
