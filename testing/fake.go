// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package testing provides doubles for driving the client against
// scripted juju behaviour without a binary on disk.
package testing

import (
	"bytes"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	"github.com/mohae/deepcopy"
	yaml "gopkg.in/yaml.v2"

	"github.com/juju/jujutest/backend"
	"github.com/juju/jujutest/client"
	"github.com/juju/jujutest/expect"
	"github.com/juju/jujutest/status"
	"github.com/juju/jujutest/wait"
)

// FakeBackend is a scripted client.Backend. Every invocation records
// on the embedded Stub for assertion, and errors are scripted the
// usual way with SetErrors. show-status is answered from pushed
// status documents, everything else from SetOutput.
type FakeBackend struct {
	*jujutesting.Stub

	version string

	mu       sync.Mutex
	statuses []*status.Status
	output   map[string][][]byte
}

var _ client.Backend = (*FakeBackend)(nil)

// NewFakeBackend returns a FakeBackend reporting the given binary
// version.
func NewFakeBackend(version string) *FakeBackend {
	return &FakeBackend{
		Stub:    &jujutesting.Stub{},
		version: version,
		output:  make(map[string][][]byte),
	}
}

// PushStatus queues a status document for show-status to serve. The
// document is deep-copied on the way in and rendered afresh on the
// way out, so neither the caller nor one poll's consumer can corrupt
// what later polls see. The last document repeats once the queue
// drains.
func (b *FakeBackend) PushStatus(st *status.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, deepcopy.Copy(st).(*status.Status))
}

// SetOutput queues canned stdout for a command. Successive
// invocations of the command consume successive values, sticking on
// the last.
func (b *FakeBackend) SetOutput(command string, output ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, out := range output {
		b.output[command] = append(b.output[command], []byte(out))
	}
}

func (b *FakeBackend) nextStatus() *status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.statuses) == 0 {
		return nil
	}
	st := b.statuses[0]
	if len(b.statuses) > 1 {
		b.statuses = b.statuses[1:]
	}
	return st
}

func (b *FakeBackend) nextOutput(command string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	queue := b.output[command]
	if len(queue) == 0 {
		return nil
	}
	out := queue[0]
	if len(queue) > 1 {
		b.output[command] = queue[1:]
	}
	return out
}

// Juju is part of client.Backend.
func (b *FakeBackend) Juju(command string, args []string, run backend.RunArgs) (*wait.CommandTime, error) {
	b.MethodCall(b, "Juju", command, args, run.Model)
	if err := b.NextErr(); err != nil {
		return nil, errors.Trace(err)
	}
	argv := append([]string{"juju", command}, args...)
	return wait.NewCommandTime(clock.WallClock, command, argv, run.ExtraEnv), nil
}

// JujuOutput is part of client.Backend. Like the real backend it
// trims trailing whitespace from what it serves.
func (b *FakeBackend) JujuOutput(command string, args []string, run backend.RunArgs) ([]byte, error) {
	b.MethodCall(b, "JujuOutput", command, args, run.Model)
	if err := b.NextErr(); err != nil {
		return nil, errors.Trace(err)
	}
	if command == "show-status" {
		if st := b.nextStatus(); st != nil {
			out, err := yaml.Marshal(st)
			if err != nil {
				return nil, errors.Trace(err)
			}
			return bytes.TrimRight(out, " \t\r\n"), nil
		}
	}
	return bytes.TrimRight(b.nextOutput(command), " \t\r\n"), nil
}

// JujuExitCode is part of client.Backend. A scripted ExitError is
// reported through the code, the way the real backend does.
func (b *FakeBackend) JujuExitCode(command string, args []string, run backend.RunArgs) (int, error) {
	b.MethodCall(b, "JujuExitCode", command, args, run.Model)
	if err := b.NextErr(); err != nil {
		if backend.IsExitError(err) {
			return backend.ExitCode(err), nil
		}
		return -1, errors.Trace(err)
	}
	return 0, nil
}

// Expect is part of client.Backend. Interactive sessions need a live
// terminal; the fake cannot script one.
func (b *FakeBackend) Expect(command string, args []string, run backend.RunArgs) (*expect.Session, error) {
	b.MethodCall(b, "Expect", command, args, run.Model)
	if err := b.NextErr(); err != nil {
		return nil, errors.Trace(err)
	}
	return nil, errors.NotSupportedf("expect sessions on a fake backend")
}

// IgnoreSoftDeadline is part of client.Backend. The fake carries no
// deadline; f simply runs.
func (b *FakeBackend) IgnoreSoftDeadline(f func() error) error {
	b.MethodCall(b, "IgnoreSoftDeadline")
	if err := b.NextErr(); err != nil {
		return errors.Trace(err)
	}
	return f()
}

// CheckTimeouts is part of client.Backend.
func (b *FakeBackend) CheckTimeouts() error {
	b.MethodCall(b, "CheckTimeouts")
	return b.NextErr()
}

// Version is part of client.Backend.
func (b *FakeBackend) Version() string {
	return b.version
}

// NextStatusFunc returns a status source serving deep copies of the
// given documents in order, sticking on the last. Wait-loop tests
// feed it to wait.Until in place of a live model. The copies are
// structural only and carry no raw yaml.
func NextStatusFunc(docs ...*status.Status) wait.StatusFunc {
	var mu sync.Mutex
	index := 0
	return func() (*status.Status, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(docs) == 0 {
			return nil, errors.New("no status documents scripted")
		}
		doc := docs[index]
		if index < len(docs)-1 {
			index++
		}
		return deepcopy.Copy(doc).(*status.Status), nil
	}
}

// MustParseStatus parses a status yaml document, panicking on error.
// It keeps fixture declarations terse.
func MustParseStatus(data string) *status.Status {
	st, err := status.ParseStatus([]byte(data))
	if err != nil {
		panic(err)
	}
	return st
}
