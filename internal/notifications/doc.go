// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Delivery is best effort by contract: the pipeline settles quota
// before notifying and never rolls back on a delivery failure.
//
// Extend this package if you need alternative transports; pipeline code
// depends only on the simple Service interface.
package notifications
