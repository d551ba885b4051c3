package modload

import (
	"errors"
	"fmt"
)

// ModuleNotFoundError is returned when a specifier cannot be resolved.
type ModuleNotFoundError struct {
	Specifier string
	From      string
}

func (e *ModuleNotFoundError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("cannot find module %q", e.Specifier)
	}
	return fmt.Sprintf("cannot find module %q from %q", e.Specifier, e.From)
}

// EvaluationError is returned when a module body, or the compilation that
// precedes it, fails. The module is evicted from the cache.
type EvaluationError struct {
	ID    string
	Cause error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating %s: %v", e.ID, e.Cause)
}

func (e *EvaluationError) Unwrap() error { return e.Cause }

// AsyncModuleUnsupportedError is returned when a declarative module graph
// cannot be driven to completion without suspending. The graph stays
// registered.
type AsyncModuleUnsupportedError struct {
	ID string
	// Pending is the module whose work was still in flight.
	Pending string
}

func (e *AsyncModuleUnsupportedError) Error() string {
	msg := fmt.Sprintf("require() async module %q is unsupported; use import() instead", e.ID)
	if e.Pending != "" && e.Pending != e.ID {
		msg += fmt.Sprintf(" (%q is still pending)", e.Pending)
	}
	return msg
}

// loaderError reports whether err already belongs to the loader's error
// taxonomy, in which case it is propagated without further wrapping.
func loaderError(err error) bool {
	var (
		notFound *ModuleNotFoundError
		eval     *EvaluationError
		async    *AsyncModuleUnsupportedError
	)
	return errors.As(err, &notFound) || errors.As(err, &eval) || errors.As(err, &async)
}

func wrapEvaluation(id string, err error) error {
	if loaderError(err) {
		return err
	}
	return &EvaluationError{ID: id, Cause: err}
}
