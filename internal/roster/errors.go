package roster

import (
	"errors"
	"fmt"
)

var ErrAlreadySubscribed = errors.New("roster: already subscribed")

// FetchError means the store query failed; the previous snapshot was kept.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("roster fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Write intent operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// WriteError carries the store's rejection of a write intent. Reason is the
// store's message, unmodified, for showing to the operator.
type WriteError struct {
	Op     string
	ID     string
	Reason string
	Err    error
}

func (e *WriteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s rejected: %s", e.Op, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

func (e *WriteError) Unwrap() error { return e.Err }

func writeError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &WriteError{Op: op, ID: id, Reason: err.Error(), Err: err}
}
