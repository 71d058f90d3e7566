package catalog

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with an existing unique key.
	ErrDuplicate = errors.New("duplicate key")
	// ErrProbeTimeout marks fetch errors caused by an expired deadline.
	ErrProbeTimeout = errors.New("probe timed out")
)

// EncodingError is returned when the store rejects a value as an invalid byte sequence.
type EncodingError struct {
	Message string
}

func (e *EncodingError) Error() string {
	return "encoding rejected by store: " + e.Message
}
