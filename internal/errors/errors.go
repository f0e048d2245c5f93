package errors

import (
	"errors"
)

// Failure categories shared across handlers and storages. Callers wrap these
// with context before logging.
var (
	ErrDurationParse     = errors.New("cant parse duration")
	ErrAlreadyInStorage  = errors.New("user already in storage")
	ErrNotFoundInStorage = errors.New("user not found in storage")
	ErrStorageUpdate     = errors.New("cant update storage entry")
)
