package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCycle        = errors.New("stage graph has a cycle")
	ErrUnknownStage = errors.New("unknown stage")
)

// CycleError reports a base or --from cycle. Path starts and ends with the
// same stage.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// UnknownStageError reports a reference to a stage that is not declared.
// Stage is empty when the reference is a build target.
type UnknownStageError struct {
	Stage string
	Ref   string
}

func (e *UnknownStageError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%v %q", ErrUnknownStage, e.Ref)
	}
	return fmt.Sprintf("stage %q: %v %q", e.Stage, ErrUnknownStage, e.Ref)
}

func (e *UnknownStageError) Unwrap() error { return ErrUnknownStage }
