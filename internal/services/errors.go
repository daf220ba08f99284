package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInsufficientCapacity marks reservations that would exceed the
	// account's period limit.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrFetchUnavailable marks a failed bulk source fetch.
	ErrFetchUnavailable = errors.New("source fetch unavailable")
	// ErrRateLimited marks provider 429 responses.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrProviderUnavailable marks provider 5xx responses and connection
	// failures.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrContentRejected marks provider 4xx content rejections, which must
	// never be retried.
	ErrContentRejected = errors.New("content rejected")
	// ErrTicketSettled marks a second settle or release of a reservation
	// ticket. Tickets are single-use.
	ErrTicketSettled = errors.New("reservation ticket already settled")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a provider error is worth another attempt.
// Rate limits, server-side failures, and connection-level errors qualify;
// content rejections and context cancellation never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrProviderUnavailable) {
		return true
	}
	if errors.Is(err, ErrContentRejected) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || urlErr.Temporary()
	}
	return false
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
