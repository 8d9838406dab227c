// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wait

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/jujutest/status"
)

// CommandTime records when a juju command was issued and when the
// change it requested was observed complete in status.
type CommandTime struct {
	Cmd      string
	FullArgs []string
	Env      []string

	clock clock.Clock
	start time.Time
	end   time.Time
}

// NewCommandTime starts a timing record for the given command. A nil
// clock selects the wall clock.
func NewCommandTime(clk clock.Clock, cmd string, fullArgs, env []string) *CommandTime {
	if clk == nil {
		clk = clock.WallClock
	}
	return &CommandTime{
		Cmd:      cmd,
		FullArgs: fullArgs,
		Env:      env,
		clock:    clk,
		start:    clk.Now(),
	}
}

// Start returns when the command was issued.
func (t *CommandTime) Start() time.Time {
	return t.start
}

// ActualCompletion records that the change the command requested has
// been observed. Only the first call sets the completion time.
func (t *CommandTime) ActualCompletion() {
	if t.end.IsZero() {
		t.end = t.clock.Now()
	}
}

// Completed reports whether completion has been observed.
func (t *CommandTime) Completed() bool {
	return !t.end.IsZero()
}

// TotalSeconds returns how long the command took from issue to
// observed completion. ok is false until completion is observed.
func (t *CommandTime) TotalSeconds() (float64, bool) {
	if t.end.IsZero() {
		return 0, false
	}
	return t.end.Sub(t.start).Seconds(), true
}

// CommandComplete pairs a condition with the timing record of the
// command that produced it. The record is marked complete the first
// time the condition reports nothing pending.
type CommandComplete struct {
	condition Condition
	timing    *CommandTime
}

// NewCommandComplete wraps condition so that timing learns when the
// command's effect lands.
func NewCommandComplete(condition Condition, timing *CommandTime) *CommandComplete {
	complete := &CommandComplete{condition: condition, timing: timing}
	if condition.AlreadySatisfied() {
		timing.ActualCompletion()
	}
	return complete
}

// CommandTime returns the timing record being tracked.
func (c *CommandComplete) CommandTime() *CommandTime {
	return c.timing
}

// Timeout is part of Condition.
func (c *CommandComplete) Timeout() time.Duration {
	return c.condition.Timeout()
}

// AlreadySatisfied is part of Condition.
func (c *CommandComplete) AlreadySatisfied() bool {
	return c.condition.AlreadySatisfied()
}

// Pending is part of Condition.
func (c *CommandComplete) Pending(st *status.Status) ([]BlockingReason, error) {
	reasons, err := c.condition.Pending(st)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(reasons) == 0 {
		c.timing.ActualCompletion()
	}
	return reasons, nil
}

// RaiseError is part of Condition.
func (c *CommandComplete) RaiseError(model string, last *status.Status) error {
	return errors.Timeoutf("waiting for %q to complete", c.timing.Cmd)
}
