// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package expect drives interactive commands under a pseudo-terminal,
// in the manner of expect(1). A Session accumulates the command's
// terminal output and consumes it by matching regular expressions, so
// prompts that do not end in a newline can be awaited and answered.
package expect

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"gopkg.in/tomb.v2"
)

var logger = loggo.GetLogger("jujutest.expect")

// DefaultTimeout bounds a single Expect call.
const DefaultTimeout = 15 * time.Second

// Session is a command running under a pseudo-terminal. Expect, Send
// and Wait must be driven from a single goroutine.
type Session struct {
	tomb      tomb.Tomb
	cmd       *exec.Cmd
	pty       *os.File
	clock     clock.Clock
	timeout   time.Duration
	output    chan string
	closeOnce sync.Once

	buffer string
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout sets the per-Expect timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.timeout = timeout
	}
}

// WithClock sets the clock used for Expect timeouts.
func WithClock(clk clock.Clock) Option {
	return func(s *Session) {
		s.clock = clk
	}
}

// Spawn starts cmd under a pseudo-terminal and begins pumping its
// output.
func Spawn(cmd *exec.Cmd, options ...Option) (*Session, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot start %s", cmd.Path)
	}
	s := &Session{
		cmd:     cmd,
		pty:     ptmx,
		clock:   clock.WallClock,
		timeout: DefaultTimeout,
		output:  make(chan string),
	}
	for _, option := range options {
		option(s)
	}
	s.tomb.Go(s.pump)
	return s, nil
}

// pump copies terminal output to the session channel until the
// terminal closes. Reading the master side fails once the command
// exits and releases the slave side.
func (s *Session) pump() error {
	defer close(s.output)
	buf := make([]byte, 4096)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			logger.Debugf("%s: %q", s.name(), chunk)
			select {
			case s.output <- chunk:
			case <-s.tomb.Dying():
				return tomb.ErrDying
			}
		}
		if err != nil {
			return nil
		}
	}
}

func (s *Session) name() string {
	return filepath.Base(s.cmd.Path)
}

// Expect consumes output until pattern matches. It returns the
// matched text followed by any submatches. Output beyond the match is
// retained for the next call.
func (s *Session) Expect(pattern *regexp.Regexp) ([]string, error) {
	timeout := s.clock.After(s.timeout)
	for {
		if loc := pattern.FindStringSubmatchIndex(s.buffer); loc != nil {
			matched := make([]string, 0, len(loc)/2)
			for i := 0; i < len(loc); i += 2 {
				if loc[i] < 0 {
					matched = append(matched, "")
					continue
				}
				matched = append(matched, s.buffer[loc[i]:loc[i+1]])
			}
			s.buffer = s.buffer[loc[1]:]
			return matched, nil
		}
		select {
		case chunk, ok := <-s.output:
			if !ok {
				return nil, errors.Errorf("%s closed its terminal expecting %q (unmatched tail %q)",
					s.name(), pattern, tail(s.buffer))
			}
			s.buffer += chunk
		case <-timeout:
			return nil, errors.Timeoutf("waiting for %q in %s output (unmatched tail %q)",
				pattern, s.name(), tail(s.buffer))
		}
	}
}

// ExpectString consumes output until the literal text appears.
func (s *Session) ExpectString(text string) error {
	_, err := s.Expect(regexp.MustCompile(regexp.QuoteMeta(text)))
	return errors.Trace(err)
}

// ExpectEOF consumes the remaining output until the command closes
// its terminal.
func (s *Session) ExpectEOF() error {
	timeout := s.clock.After(s.timeout)
	for {
		select {
		case chunk, ok := <-s.output:
			if !ok {
				return nil
			}
			s.buffer += chunk
		case <-timeout:
			return errors.Timeoutf("waiting for %s to close its terminal (unmatched tail %q)",
				s.name(), tail(s.buffer))
		}
	}
}

// Send writes text to the command's terminal.
func (s *Session) Send(text string) error {
	logger.Debugf("%s send: %q", s.name(), text)
	_, err := io.WriteString(s.pty, text)
	return errors.Trace(err)
}

// SendLine writes text to the command's terminal followed by a
// newline.
func (s *Session) SendLine(text string) error {
	return errors.Trace(s.Send(text + "\n"))
}

// Buffer returns the output consumed but not yet matched.
func (s *Session) Buffer() string {
	return s.buffer
}

// Wait reaps the command after its output has been consumed. A
// non-zero exit is returned as an error.
func (s *Session) Wait() error {
	waitErr := s.cmd.Wait()
	s.tomb.Kill(nil)
	_ = s.tomb.Wait()
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return errors.Trace(waitErr)
		}
		return errors.Errorf("%s exited %d", s.name(), exitErr.ExitCode())
	}
	return nil
}

// Close kills the command and releases the terminal. It is safe to
// call after Wait.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.tomb.Kill(nil)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.pty.Close()
		_ = s.tomb.Wait()
		_ = s.cmd.Wait()
	})
	return nil
}

// tail trims all but the end of a buffer for error messages.
func tail(s string) string {
	const keep = 256
	if len(s) > keep {
		return "..." + s[len(s)-keep:]
	}
	return s
}
