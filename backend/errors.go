// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"
)

// ExitError describes a juju invocation that exited non-zero.
type ExitError struct {
	// Args is the full argument vector that was run.
	Args []string
	// Code is the exit code.
	Code int
	// Output is captured stdout, when the invocation captured it.
	Output []byte
	// Stderr is captured stderr, when the invocation captured it.
	Stderr []byte
}

// NewExitError returns an ExitError for the given invocation.
func NewExitError(args []string, code int, output, stderr []byte) *ExitError {
	return &ExitError{Args: args, Code: code, Output: output, Stderr: stderr}
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %s exited %d", shellquote.Join(e.Args...), e.Code)
	if tail := e.StderrTail(); tail != "" {
		msg = fmt.Sprintf("%s: %s", msg, tail)
	}
	return msg
}

// StderrTail returns the last non-blank stderr line, which is where
// juju puts the message that matters.
func (e *ExitError) StderrTail() string {
	lines := strings.Split(strings.TrimRight(string(e.Stderr), "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// IsExitError reports whether err is an ExitError or a CannotConnect
// wrapping one.
func IsExitError(err error) bool {
	switch errors.Cause(err).(type) {
	case *ExitError, *CannotConnect:
		return true
	}
	return false
}

// ExitCode returns the exit code carried by err, or -1 when err does
// not carry one.
func ExitCode(err error) int {
	switch e := errors.Cause(err).(type) {
	case *ExitError:
		return e.Code
	case *CannotConnect:
		return e.ExitError.Code
	}
	return -1
}

// cannotConnectFragments are the stderr substrings that mark a failed
// invocation as a transient controller connectivity problem worth
// retrying.
var cannotConnectFragments = []string{
	"Unable to connect to environment",
	"MissingOrIncorrectVersionHeader",
	"307: Temporary Redirect",
}

// CannotConnect wraps an ExitError whose stderr indicates the
// controller could not be reached.
type CannotConnect struct {
	*ExitError
}

// IsCannotConnect reports whether err is a CannotConnect.
func IsCannotConnect(err error) bool {
	_, ok := errors.Cause(err).(*CannotConnect)
	return ok
}

// classifyExitError wraps exit in CannotConnect when its stderr
// matches a known connectivity failure.
func classifyExitError(exit *ExitError) error {
	stderr := string(exit.Stderr)
	for _, fragment := range cannotConnectFragments {
		if strings.Contains(stderr, fragment) {
			return &CannotConnect{exit}
		}
	}
	return exit
}

// SoftDeadlineExceeded is reported when an invocation completes after
// the backend's soft deadline has passed.
type SoftDeadlineExceeded struct{}

func (*SoftDeadlineExceeded) Error() string {
	return "operation exceeded deadline"
}

// IsSoftDeadlineExceeded reports whether err is a
// SoftDeadlineExceeded.
func IsSoftDeadlineExceeded(err error) bool {
	_, ok := errors.Cause(err).(*SoftDeadlineExceeded)
	return ok
}
