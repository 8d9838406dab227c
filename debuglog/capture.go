// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package debuglog

import (
	"os"

	"github.com/juju/errors"

	"github.com/juju/jujutest/backend"
)

// AsyncRunner starts a juju command without waiting for it.
type AsyncRunner interface {
	JujuAsync(command string, args []string, run backend.RunArgs) (*backend.AsyncCommand, error)
}

// Capture is a debug-log dump in progress.
type Capture struct {
	handle *backend.AsyncCommand
	file   *os.File
}

// StartCapture begins replaying the model's debug log into the file
// at path, overwriting it. Wait on the capture before reading the
// file.
func StartCapture(runner AsyncRunner, run backend.RunArgs, path string) (*Capture, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	run.Stdout = file
	handle, err := runner.JujuAsync("debug-log", []string{"--replay", "--no-tail"}, run)
	if err != nil {
		_ = file.Close()
		return nil, errors.Trace(err)
	}
	return &Capture{handle: handle, file: file}, nil
}

// Wait blocks until the dump completes, then flushes and closes the
// capture file.
func (c *Capture) Wait() error {
	err := c.handle.Wait()
	closeErr := c.file.Close()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(closeErr)
}

// Path returns the capture file location.
func (c *Capture) Path() string {
	return c.file.Name()
}
