// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package client drives a juju model through the juju command line.
// A ModelClient issues commands against one model, parses the status
// the binary reports and waits for the model to converge on the
// conditions a test needs.
package client

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/juju/jujutest/backend"
	"github.com/juju/jujutest/expect"
	"github.com/juju/jujutest/reporter"
	"github.com/juju/jujutest/status"
	"github.com/juju/jujutest/wait"
)

var logger = loggo.GetLogger("jujutest.client")

const (
	// StatusTimeout bounds how long Status retries a failing status
	// invocation before giving up.
	StatusTimeout = 60 * time.Second

	// statusPollInterval separates the polls of a status loop.
	statusPollInterval = 1 * time.Second

	// teardownTimeout hard-kills a destroy or kill invocation that
	// the controller never answers.
	teardownTimeout = 10 * time.Minute
)

// Backend is the subset of backend.Backend a ModelClient drives.
type Backend interface {
	// Juju runs a command to completion, failing on non-zero exit.
	Juju(command string, args []string, run backend.RunArgs) (*wait.CommandTime, error)

	// JujuOutput runs a command and captures its stdout.
	JujuOutput(command string, args []string, run backend.RunArgs) ([]byte, error)

	// JujuExitCode runs a command, reporting a non-zero exit through
	// the code rather than an error.
	JujuExitCode(command string, args []string, run backend.RunArgs) (int, error)

	// Expect starts a command under a pseudo-terminal for driving its
	// prompts.
	Expect(command string, args []string, run backend.RunArgs) (*expect.Session, error)

	// IgnoreSoftDeadline runs f with soft deadline checks disabled.
	IgnoreSoftDeadline(f func() error) error

	// CheckTimeouts fails when the soft deadline has passed.
	CheckTimeouts() error

	// Version reports the version of the binary being run.
	Version() string
}

// Config holds what a ModelClient needs.
type Config struct {
	// Backend runs the juju binary.
	Backend Backend

	// Data describes the model being driven.
	Data *JujuData

	// UsedFeatureFlags declares the feature flags this client relies
	// on; only these reach the binary's environment. Defaults to
	// migration.
	UsedFeatureFlags set.Strings

	// Out receives wait-loop progress. Defaults to stdout.
	Out io.Writer

	// Clock times retry and poll loops. Defaults to clock.WallClock.
	Clock clock.Clock
}

// ModelClient drives one model. Clients for other models on the same
// controller share the backend, so they also share its soft deadline
// and command timings.
type ModelClient struct {
	backend   Backend
	data      *JujuData
	usedFlags set.Strings
	out       io.Writer
	clock     clock.Clock

	mu     sync.Mutex
	models []*ModelClient
}

// New returns a ModelClient for the given configuration.
func New(config Config) (*ModelClient, error) {
	if config.Backend == nil {
		return nil, errors.NotValidf("client without backend")
	}
	if config.Data == nil {
		return nil, errors.NotValidf("client without model data")
	}
	if config.UsedFeatureFlags == nil {
		config.UsedFeatureFlags = set.NewStrings("migration")
	}
	if config.Out == nil {
		config.Out = os.Stdout
	}
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	return &ModelClient{
		backend:   config.Backend,
		data:      config.Data,
		usedFlags: config.UsedFeatureFlags,
		out:       config.Out,
		clock:     config.Clock,
	}, nil
}

// clone returns a client for another model through the same backend.
func (c *ModelClient) clone(data *JujuData) *ModelClient {
	return &ModelClient{
		backend:   c.backend,
		data:      data,
		usedFlags: c.usedFlags,
		out:       c.out,
		clock:     c.clock,
	}
}

// Data returns the model description the client was built with.
func (c *ModelClient) Data() *JujuData {
	return c.data
}

// ModelName returns the unqualified model name.
func (c *ModelClient) ModelName() string {
	return c.data.Model
}

// FullModelName returns the controller-qualified model name passed to
// -m, such as "ctrl:default".
func (c *ModelClient) FullModelName() string {
	return c.data.Controller + ":" + c.data.Model
}

// Version reports the version of the juju binary being driven.
func (c *ModelClient) Version() string {
	return c.backend.Version()
}

// modelRun returns the run arguments for a command scoped to this
// client's model.
func (c *ModelClient) modelRun() backend.RunArgs {
	return backend.RunArgs{
		Model:     c.FullModelName(),
		Home:      c.data.Home,
		UsedFlags: c.usedFlags,
	}
}

// noModelRun returns the run arguments for a command that takes no
// model selector; controller commands name their controller in args.
func (c *ModelClient) noModelRun() backend.RunArgs {
	return backend.RunArgs{
		Home:      c.data.Home,
		UsedFlags: c.usedFlags,
	}
}

// controllerArgs prepends the -c selector for a controller-scoped
// command.
func (c *ModelClient) controllerArgs(args ...string) []string {
	return append([]string{"-c", c.data.Controller}, args...)
}

// Status returns the current model status. Transient failures of the
// status command, a controller restart for instance, are retried for
// StatusTimeout before the wait is declared a timeout.
func (c *ModelClient) Status() (*status.Status, error) {
	var result *status.Status
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			out, err := c.backend.JujuOutput("show-status", []string{"--format", "yaml"}, c.modelRun())
			if err != nil {
				return errors.Trace(err)
			}
			parsed, err := status.ParseStatus(out)
			if err != nil {
				return errors.Trace(err)
			}
			result = parsed
			return nil
		},
		IsFatalError: func(err error) bool {
			return !backend.IsExitError(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("status attempt %d failed: %v", attempt, err)
		},
		Delay:       statusPollInterval,
		MaxDuration: StatusTimeout,
		Clock:       c.clock,
	})
	if err != nil {
		if retry.IsDurationExceeded(err) || retry.IsAttemptsExceeded(err) {
			return nil, errors.Timeoutf("waiting for juju status to succeed")
		}
		return nil, errors.Trace(err)
	}
	return result, nil
}

// StatusUntil calls fn with fresh status snapshots until fn returns
// false or the timeout elapses; fn always sees at least one snapshot.
// Soft deadline checks are suspended while polling and applied once
// at the end, so a long observation does not mask how late it ran.
func (c *ModelClient) StatusUntil(timeout time.Duration, fn func(*status.Status) bool) error {
	err := c.backend.IgnoreSoftDeadline(func() error {
		deadline := c.clock.Now().Add(timeout)
		for {
			st, err := c.Status()
			if err != nil {
				return errors.Trace(err)
			}
			if !fn(st) {
				return nil
			}
			if !c.clock.Now().Before(deadline) {
				return nil
			}
			<-c.clock.After(statusPollInterval)
		}
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.backend.CheckTimeouts())
}

// WaitForStarted blocks until every machine and unit agent reports
// started, returning the satisfying snapshot. A non-positive timeout
// selects the condition's default.
func (c *ModelClient) WaitForStarted(timeout time.Duration) (*status.Status, error) {
	return c.waitFor(wait.NewAgentsStarted(timeout), "started")
}

// WaitForWorkloads blocks until every unit workload is active or
// unknown.
func (c *ModelClient) WaitForWorkloads(timeout time.Duration) (*status.Status, error) {
	return c.waitFor(wait.NewAllWorkloadsActive(timeout), "active")
}

// WaitForVersion blocks until every agent reports the target version.
func (c *ModelClient) WaitForVersion(version string, timeout time.Duration) (*status.Status, error) {
	condition, err := wait.NewVersion(version, timeout)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return c.waitFor(condition, version)
}

// WaitForDeployStarted blocks until at least count applications show
// up in status.
func (c *ModelClient) WaitForDeployStarted(count int, timeout time.Duration) (*status.Status, error) {
	return c.waitFor(wait.NewDeployStarted(count, timeout), "")
}

// WaitFor blocks until the given condition is satisfied. Progress
// groups every pending entity by state; there is no expected state to
// elide.
func (c *ModelClient) WaitFor(condition wait.Condition) (*status.Status, error) {
	return c.waitFor(condition, "")
}

func (c *ModelClient) waitFor(condition wait.Condition, expected string) (*status.Status, error) {
	st, err := wait.Until(wait.UntilArgs{
		Condition: condition,
		Status:    c.Status,
		Model:     c.data.Model,
		Clock:     c.clock,
		Interval:  statusPollInterval,
		Reporter:  reporter.NewGroupReporter(c.out, expected),
	})
	return st, errors.Trace(err)
}
