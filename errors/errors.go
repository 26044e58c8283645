// Package errors defines the error taxonomy of the messaging core.
// Typed errors cross the UI boundary; sentinels carry the cause.
package errors

import "fmt"

var (
	ErrEmptyContent    = fmt.Errorf("message content is empty")
	ErrContentTooLong  = fmt.Errorf("message content exceeds %d characters", 5000)
	ErrProfileNotFound = fmt.Errorf("entity profile not found")
	ErrNoOpenChat      = fmt.Errorf("no conversation is open")
	ErrNoActiveSession = fmt.Errorf("no messaging session is active")
	ErrFeedClosed      = fmt.Errorf("change feed is closed")
)

// NotFoundError reports an account that has no acting identity row.
// Fatal to entering the messaging core; the caller redirects away.
type NotFoundError struct {
	AccountID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no acting entity for account %q", e.AccountID)
}

// ResolutionError reports a dangling entity reference, typically an
// artist or venue whose backing spotter record is missing. The caller
// must abort conversation creation rather than message a dangling id.
type ResolutionError struct {
	EntityID   string
	EntityType string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s %q: %v", e.EntityType, e.EntityID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// AggregationError reports a failed conversation summary fetch.
// Recoverable: the caller falls back to an empty grouped map and a
// retryable UI state.
type AggregationError struct {
	ViewerID string
	Err      error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("conversation aggregation failed for viewer %q: %v", e.ViewerID, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// SendError reports a failed message write, including validation
// failures. The optimistic local message stays visible, marked failed.
type SendError struct {
	MessageID string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed for message %q: %v", e.MessageID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// SubscriptionError reports a feed setup or transport failure.
// The session degrades to pull-only and retries with backoff.
type SubscriptionError struct {
	ViewerID string
	Err      error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("feed subscription failed for viewer %q: %v", e.ViewerID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
