// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package wait defines the conditions a model can be polled for and
// the loop that polls status snapshots until a condition is met.
package wait

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/jujutest/status"
)

// DefaultTimeout bounds a condition that does not say otherwise.
const DefaultTimeout = 5 * time.Minute

// BlockingReason names an entity that is blocking a condition and the
// state it was found in.
type BlockingReason struct {
	Entity string
	State  string
}

// Condition is a goal a model converges on. Pending reports what is
// still in the way; an empty result means the goal is reached.
type Condition interface {
	// Timeout is the longest Until will poll for the condition.
	Timeout() time.Duration

	// AlreadySatisfied reports whether the condition held before the
	// operation it tracks ran, so there is nothing to wait for.
	AlreadySatisfied() bool

	// Pending returns the entities still blocking the condition in
	// the given snapshot, with the state each is in.
	Pending(*status.Status) ([]BlockingReason, error)

	// RaiseError builds the error reported when Timeout expires with
	// the condition still blocked. last may be nil when no snapshot
	// was obtained.
	RaiseError(model string, last *status.Status) error
}

// Base supplies the timeout bookkeeping common to conditions. It is
// intended for embedding.
type Base struct {
	timeout          time.Duration
	alreadySatisfied bool
}

// NewBase returns a Base with the given timeout, or DefaultTimeout
// when non-positive.
func NewBase(timeout time.Duration) Base {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Base{timeout: timeout}
}

// NewSatisfiedBase returns a Base for a condition that already held
// before the operation it tracks ran.
func NewSatisfiedBase(timeout time.Duration) Base {
	base := NewBase(timeout)
	base.alreadySatisfied = true
	return base
}

// Timeout is part of Condition.
func (b Base) Timeout() time.Duration {
	return b.timeout
}

// AlreadySatisfied is part of Condition.
func (b Base) AlreadySatisfied() bool {
	return b.alreadySatisfied
}

// ConditionList waits for all of its child conditions at once. The
// timeout is the largest child timeout, and the first child reports
// the failure when time runs out.
type ConditionList struct {
	conditions []Condition
}

// NewConditionList combines the given conditions.
func NewConditionList(conditions ...Condition) *ConditionList {
	return &ConditionList{conditions: conditions}
}

// Timeout is part of Condition.
func (l *ConditionList) Timeout() time.Duration {
	if len(l.conditions) == 0 {
		return DefaultTimeout
	}
	longest := l.conditions[0].Timeout()
	for _, cond := range l.conditions[1:] {
		if t := cond.Timeout(); t > longest {
			longest = t
		}
	}
	return longest
}

// AlreadySatisfied is part of Condition.
func (l *ConditionList) AlreadySatisfied() bool {
	for _, cond := range l.conditions {
		if !cond.AlreadySatisfied() {
			return false
		}
	}
	return true
}

// Pending is part of Condition. The children's reasons are
// concatenated in condition order.
func (l *ConditionList) Pending(st *status.Status) ([]BlockingReason, error) {
	var reasons []BlockingReason
	for _, cond := range l.conditions {
		more, err := cond.Pending(st)
		if err != nil {
			return nil, errors.Trace(err)
		}
		reasons = append(reasons, more...)
	}
	return reasons, nil
}

// RaiseError is part of Condition.
func (l *ConditionList) RaiseError(model string, last *status.Status) error {
	if len(l.conditions) == 0 {
		return errors.Timeoutf("waiting on model %q", model)
	}
	return l.conditions[0].RaiseError(model, last)
}

// GroupByState groups blocking reasons by state, preserving the
// reason order within each state.
func GroupByState(reasons []BlockingReason) map[string][]string {
	groups := make(map[string][]string)
	for _, reason := range reasons {
		groups[reason.State] = append(groups[reason.State], reason.Entity)
	}
	return groups
}

// Reporter receives the blocking groups found on each unsatisfied
// poll. reporter.GroupReporter is the usual implementation.
type Reporter interface {
	Update(groups map[string][]string)
	Finish()
}

// StatusFunc returns a fresh status snapshot.
type StatusFunc func() (*status.Status, error)

// UntilArgs holds the arguments for Until.
type UntilArgs struct {
	// Condition is the goal to poll for.
	Condition Condition

	// Status produces a fresh snapshot per poll.
	Status StatusFunc

	// Model names the model being waited on, for error reporting.
	Model string

	// Clock times the poll loop. Wall clock when nil.
	Clock clock.Clock

	// Interval separates polls. One second when non-positive.
	Interval time.Duration

	// Reporter, when set, receives progress groups and is finished
	// when the wait ends.
	Reporter Reporter
}

// Until polls status snapshots until the condition reports nothing
// pending, returning the snapshot that satisfied it.
//
// A fatal status error aborts the wait as soon as it is seen;
// recoverable ones are tolerated until the condition's timeout, at
// which point the most severe is reported, or failing that the
// condition's own error. A timeout fetching status is treated as the
// condition timing out.
func Until(args UntilArgs) (*status.Status, error) {
	if args.Condition == nil || args.Status == nil {
		return nil, errors.New("wait requires both a condition and a status source")
	}
	clk := args.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	interval := args.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if args.Reporter != nil {
		defer args.Reporter.Finish()
	}
	if args.Condition.AlreadySatisfied() {
		st, err := args.Status()
		return st, errors.Trace(err)
	}
	deadline := clk.Now().Add(args.Condition.Timeout())
	var last *status.Status
	for {
		st, err := args.Status()
		if err != nil {
			if errors.IsTimeout(err) {
				break
			}
			return nil, errors.Trace(err)
		}
		last = st
		if err := st.HighestError(true); err != nil {
			return nil, errors.Trace(err)
		}
		reasons, err := args.Condition.Pending(st)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(reasons) == 0 {
			return st, nil
		}
		if args.Reporter != nil {
			args.Reporter.Update(GroupByState(reasons))
		}
		if !clk.Now().Before(deadline) {
			break
		}
		<-clk.After(interval)
	}
	if last != nil {
		if err := last.HighestError(false); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return nil, errors.Trace(args.Condition.RaiseError(args.Model, last))
}
