package generator

import (
	"errors"
	"fmt"
)

// Kind distinguishes failures the caller must handle differently.
type Kind string

const (
	// KindBuild covers staging and packaging failures.
	KindBuild Kind = "build"
	// KindValidation means the packed archive failed its structural check and
	// was not published.
	KindValidation Kind = "validation"
)

var (
	ErrBuild      = errors.New("generator: build failed")
	ErrValidation = errors.New("generator: archive failed validation")
)

// Error is returned by Generate for every non-nil failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generator: %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrBuild:
		return e.Kind == KindBuild
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

func buildErr(op string, err error) error {
	return &Error{Kind: KindBuild, Op: op, Err: err}
}
