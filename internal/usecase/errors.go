package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

var (
	ErrInputMissing  = errors.New("input missing")
	ErrEmptyTimeline = errors.New("empty timeline: no clip was selected")
	ErrExtraction    = errors.New("segment extraction failed")
	ErrConcatenation = errors.New("concatenation failed")
	ErrMix           = errors.New("audio mix failed")
	ErrPersistence   = errors.New("artifact persistence failed")
	ErrToolTimeout   = errors.New("external tool timed out")
)

// StageError is a fatal run failure. It names the stage and the files it was
// working on.
type StageError struct {
	Stage string
	Paths []string
	Err   error
}

func (e *StageError) Error() string {
	if len(e.Paths) == 0 {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Stage, strings.Join(e.Paths, ", "), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageErr wraps cause in kind. Missing files additionally match
// ErrInputMissing and deadline hits match ErrToolTimeout.
func stageErr(stage string, kind, cause error, paths ...string) error {
	kinds := []error{}
	if kind != nil {
		kinds = append(kinds, kind)
	}
	if errors.Is(cause, fs.ErrNotExist) && kind != ErrInputMissing {
		kinds = append(kinds, ErrInputMissing)
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		kinds = append(kinds, ErrToolTimeout)
	}

	err := cause
	for i := len(kinds) - 1; i >= 0; i-- {
		err = fmt.Errorf("%w: %w", kinds[i], err)
	}
	return &StageError{Stage: stage, Paths: paths, Err: err}
}
