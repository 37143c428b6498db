package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrRecordLocked indicates another mutation holds the record lock.
	ErrRecordLocked = errors.New("storage record locked by another operation")
)
