package readwise

import "fmt"

// StatusError is returned when the API answers with a non-retryable,
// non-success status. 429 is never surfaced as a StatusError; the client
// retries it internally.
type StatusError struct {
	Resource   string // "books", "highlights", "documents"
	StatusCode int
	Detail     string // response body, truncated
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("readwise: %s: unexpected status %d: %s", e.Resource, e.StatusCode, e.Detail)
}
