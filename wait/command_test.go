// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wait_test

import (
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/jujutest/wait"
)

type commandSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&commandSuite{})

func (s *commandSuite) TestCommandTimeRecordsDuration(c *gc.C) {
	clk := testclock.NewClock(time.Date(2018, 3, 1, 10, 0, 0, 0, time.UTC))
	timing := wait.NewCommandTime(clk, "deploy", []string{"juju", "deploy", "mysql"}, nil)
	c.Check(timing.Start(), gc.Equals, time.Date(2018, 3, 1, 10, 0, 0, 0, time.UTC))
	c.Check(timing.Completed(), jc.IsFalse)
	_, ok := timing.TotalSeconds()
	c.Check(ok, jc.IsFalse)

	clk.Advance(90 * time.Second)
	timing.ActualCompletion()
	c.Check(timing.Completed(), jc.IsTrue)
	seconds, ok := timing.TotalSeconds()
	c.Assert(ok, jc.IsTrue)
	c.Check(seconds, gc.Equals, 90.0)
}

func (s *commandSuite) TestCommandTimeCompletionRecordedOnce(c *gc.C) {
	clk := testclock.NewClock(time.Date(2018, 3, 1, 10, 0, 0, 0, time.UTC))
	timing := wait.NewCommandTime(clk, "deploy", nil, nil)
	clk.Advance(time.Minute)
	timing.ActualCompletion()
	clk.Advance(time.Hour)
	timing.ActualCompletion()
	seconds, ok := timing.TotalSeconds()
	c.Assert(ok, jc.IsTrue)
	c.Check(seconds, gc.Equals, 60.0)
}

func (s *commandSuite) TestCommandCompleteMarksCompletion(c *gc.C) {
	clk := testclock.NewClock(time.Date(2018, 3, 1, 10, 0, 0, 0, time.UTC))
	timing := wait.NewCommandTime(clk, "deploy", nil, nil)
	cond := &fakeCondition{
		Base:    wait.NewBase(time.Minute),
		reasons: []wait.BlockingReason{{Entity: "mysql/0", State: "executing"}},
	}
	complete := wait.NewCommandComplete(cond, timing)
	c.Check(complete.Timeout(), gc.Equals, time.Minute)

	reasons, err := complete.Pending(parse(c, settlingYAML))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(reasons, gc.HasLen, 1)
	c.Check(timing.Completed(), jc.IsFalse)

	clk.Advance(30 * time.Second)
	cond.reasons = nil
	reasons, err = complete.Pending(parse(c, settledYAML))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(reasons, gc.HasLen, 0)
	c.Check(timing.Completed(), jc.IsTrue)
	seconds, ok := timing.TotalSeconds()
	c.Assert(ok, jc.IsTrue)
	c.Check(seconds, gc.Equals, 30.0)
}

func (s *commandSuite) TestCommandCompleteAlreadySatisfied(c *gc.C) {
	clk := testclock.NewClock(time.Date(2018, 3, 1, 10, 0, 0, 0, time.UTC))
	timing := wait.NewCommandTime(clk, "remove-machine", nil, nil)
	cond := &fakeCondition{Base: wait.NewSatisfiedBase(time.Minute)}
	complete := wait.NewCommandComplete(cond, timing)
	c.Check(complete.AlreadySatisfied(), jc.IsTrue)
	c.Check(timing.Completed(), jc.IsTrue)
}

func (s *commandSuite) TestCommandCompleteRaiseError(c *gc.C) {
	timing := wait.NewCommandTime(nil, "deploy", nil, nil)
	complete := wait.NewCommandComplete(&fakeCondition{Base: wait.NewBase(time.Minute)}, timing)
	err := complete.RaiseError("feature-test", nil)
	c.Assert(err, jc.Satisfies, errors.IsTimeout)
	c.Check(err, gc.ErrorMatches, `waiting for "deploy" to complete timeout`)
}
