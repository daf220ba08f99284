// Package services defines shared utilities consumed by the pipeline and the
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp account identifiers, run tokens, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (capacity, fetch, provider, content) consistent across
//     every code path that talks to a collaborator.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services
