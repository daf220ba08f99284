// Package pipeline orchestrates one metered batch-enrichment invocation.
//
// A run walks a fixed state machine: resolve sources, reserve quota against
// an upper-bound estimate, fetch, merge and persist each item, enrich in
// chunks, settle the reservation against the actual output, then notify.
// Capacity and fetch failures terminate the run as a whole; enrichment
// failures degrade single entities and never abort the batch. Settlement
// always happens before notification, and a notification failure never
// rolls it back.
package pipeline
