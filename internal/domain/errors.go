package domain

import "errors"

// Fetch failure taxonomy. Adapters wrap these with context via fmt.Errorf("%w: ...")
// so callers can classify a failure with errors.Is.
var (
	// ErrTransport is a failed request or a non-success HTTP status.
	ErrTransport = errors.New("transport error")
	// ErrEmptyResponse is a response body with no usable content.
	ErrEmptyResponse = errors.New("empty response")
	// ErrSchema is a missing required header or column.
	ErrSchema = errors.New("schema error")
	// ErrSemantic is a row that does not match the request, e.g. a wrong date.
	ErrSemantic = errors.New("semantic mismatch")
)
