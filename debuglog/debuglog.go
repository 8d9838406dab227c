// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package debuglog watches juju debug-log output for expected lines,
// either following a capture file or consuming a live stream.
package debuglog

import (
	"io"
	"regexp"
	"time"

	"github.com/hpcloud/tail"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/mitchellh/go-linereader"
	"gopkg.in/tomb.v2"
)

// lineSource consumes a channel of log lines against patterns.
type lineSource struct {
	clock clock.Clock
	lines chan string
	tomb  *tomb.Tomb
}

// WaitForPattern consumes lines until one matches re, returning the
// matching line. Lines arriving before the call are not replayed.
func (s *lineSource) WaitForPattern(re *regexp.Regexp, timeout time.Duration) (string, error) {
	deadline := s.clock.After(timeout)
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				// The channel closes just before the pump finishes;
				// wait so a read failure is not lost.
				if err := s.tomb.Wait(); err != nil {
					return "", errors.Trace(err)
				}
				return "", errors.Errorf("log closed before %q matched", re)
			}
			if re.MatchString(line) {
				return line, nil
			}
		case <-deadline:
			return "", errors.Timeoutf("waiting for %q in log", re)
		}
	}
}

// Watcher follows a debug-log capture file as it grows.
type Watcher struct {
	lineSource
	watchTomb tomb.Tomb
	tail      *tail.Tail
}

// NewWatcher follows the log file at path from its beginning. The
// file need not exist yet.
func NewWatcher(path string) (*Watcher, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow: true,
		ReOpen: true,
		Logger: tail.DiscardingLogger,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "cannot follow %q", path)
	}
	w := &Watcher{tail: t}
	w.lineSource = lineSource{
		clock: clock.WallClock,
		lines: make(chan string),
		tomb:  &w.watchTomb,
	}
	w.watchTomb.Go(w.loop)
	return w, nil
}

func (w *Watcher) loop() error {
	defer close(w.lines)
	for {
		select {
		case line, ok := <-w.tail.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return errors.Trace(line.Err)
			}
			select {
			case w.lines <- line.Text:
			case <-w.watchTomb.Dying():
				return tomb.ErrDying
			}
		case <-w.watchTomb.Dying():
			return tomb.ErrDying
		}
	}
}

// Close stops following the file.
func (w *Watcher) Close() error {
	w.watchTomb.Kill(nil)
	_ = w.tail.Stop()
	return errors.Trace(w.watchTomb.Wait())
}

// Stream follows live debug-log output from a reader, such as the
// piped stdout of a tailing invocation.
type Stream struct {
	lineSource
	streamTomb tomb.Tomb
}

// NewStream consumes log lines from r until it closes.
func NewStream(r io.Reader) *Stream {
	s := &Stream{}
	s.lineSource = lineSource{
		clock: clock.WallClock,
		lines: make(chan string),
		tomb:  &s.streamTomb,
	}
	reader := linereader.New(r)
	s.streamTomb.Go(func() error {
		defer close(s.lines)
		for {
			select {
			case line, ok := <-reader.Ch:
				if !ok {
					return nil
				}
				select {
				case s.lines <- line:
				case <-s.streamTomb.Dying():
					return tomb.ErrDying
				}
			case <-s.streamTomb.Dying():
				return tomb.ErrDying
			}
		}
	})
	return s
}

// Close stops consuming the reader. The reader itself must be closed
// by whoever owns it.
func (s *Stream) Close() error {
	s.streamTomb.Kill(nil)
	return errors.Trace(s.streamTomb.Wait())
}
