package build

import (
	"errors"
	"fmt"
)

var (
	ErrExecution = errors.New("instruction failed")
	ErrPublish   = errors.New("publish failed")
)

// ExecutionError is the first failing instruction of a stage. The stage and
// every stage depending on it stop; independent stages carry on.
type ExecutionError struct {
	Stage       string
	Index       int
	Instruction string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("stage %q instruction #%d %q: %v: %v", e.Stage, e.Index, e.Instruction, ErrExecution, e.Err)
}

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

func (e *ExecutionError) Unwrap() error { return e.Err }

type PublishError struct {
	Stage string
	Ref   string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("stage %q: %v %s: %v", e.Stage, ErrPublish, e.Ref, e.Err)
}

func (e *PublishError) Is(target error) bool { return target == ErrPublish }

func (e *PublishError) Unwrap() error { return e.Err }
