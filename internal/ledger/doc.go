// Package ledger meters enrichment capacity per account and period.
//
// Every code path that spends quota goes through the Reserve/Settle/Release
// trio: Reserve charges an upper-bound estimate before the true cost of a
// bulk fetch is known, Settle refunds the difference once the run completes,
// and Release refunds the full reservation when a run fails before producing
// output. Counter mutations are atomic row updates in the store, so
// concurrent runs for the same account never lose updates. Period rollover
// (daily or monthly-anniversary) is evaluated lazily before every operation.
//
// Guests get the same contract keyed by a caller fingerprint instead of an
// account row, with a fixed daily limit and TTL-expiring storage.
package ledger
