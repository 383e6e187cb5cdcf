package cache

import (
	"errors"
	"fmt"
)

var ErrRegistration = errors.New("cache source rejected")

// RegistrationError reports a cache source that could not be merged into the
// index. It is a soft failure: the source is excluded and the build goes on.
type RegistrationError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *RegistrationError) Error() string {
	msg := fmt.Sprintf("%v %q: %s", ErrRegistration, e.Ref, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegistrationError) Is(target error) bool { return target == ErrRegistration }

func (e *RegistrationError) Unwrap() error { return e.Err }
