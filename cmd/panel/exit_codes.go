package main

import (
	"errors"

	apperrors "github.com/odvcencio/panel/pkg/errors"
)

const (
	exitRuntime = 1
	// exitSetup covers bad flags, configuration and layout.
	exitSetup = 2
)

// exitError attaches a process exit status to an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeForError maps err to a process status. Layout and configuration
// errors exit with exitSetup even when they were not wrapped.
func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var coded *exitError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeLayoutInvalid, apperrors.ErrCodeLayoutLoad,
		apperrors.ErrCodeUnknownKind, apperrors.ErrCodeDuplicateIdentity,
		apperrors.ErrCodeConfigLoad, apperrors.ErrCodeConfigParse, apperrors.ErrCodeConfigInvalid:
		return exitSetup
	default:
		return exitRuntime
	}
}
