// Package enrich schedules summarization work across interchangeable
// providers with bounded concurrency, chunked fan-out, retry, and per-item
// failure isolation.
package enrich
