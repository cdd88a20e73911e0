package core

import (
	"errors"
	"fmt"
)

var (
	ErrCannotConnect = errors.New("cannot connect")
	ErrInvalidAuth   = errors.New("invalid authentication")
	ErrNotReady      = errors.New("not ready")
	ErrUnknownEntity = errors.New("unknown entity")
	ErrUnsupported   = errors.New("unsupported")
	ErrUpdateFailed  = errors.New("update failed")
	ErrUnknownEntry  = errors.New("unknown config entry")
	ErrUnknownFlow   = errors.New("unknown flow")
	ErrUnknownDomain = errors.New("unknown integration")
)

// UpdateFailedError is returned by coordinator update methods when fresh
// data could not be obtained.
type UpdateFailedError struct {
	Msg string
	Err error
}

func UpdateFailed(err error, format string, args ...interface{}) *UpdateFailedError {
	return &UpdateFailedError{Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *UpdateFailedError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

func (e *UpdateFailedError) Is(target error) bool {
	return target == ErrUpdateFailed
}
