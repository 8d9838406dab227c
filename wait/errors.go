// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wait

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/juju/jujutest/status"
)

// StatusNotMet is reported when a wait runs out of time with its
// condition still blocked. The concrete condition failures embed it.
type StatusNotMet struct {
	model   string
	last    *status.Status
	message string
}

func notMet(model string, last *status.Status, format string, args ...interface{}) StatusNotMet {
	return StatusNotMet{
		model:   model,
		last:    last,
		message: fmt.Sprintf(format, args...),
	}
}

func (e *StatusNotMet) Error() string {
	return e.message
}

// Model returns the model that was waited on.
func (e *StatusNotMet) Model() string {
	return e.model
}

// LastStatus returns the last snapshot seen before giving up, which
// may be nil.
func (e *StatusNotMet) LastStatus() *status.Status {
	return e.last
}

// NewStatusNotMet returns the generic condition failure.
func NewStatusNotMet(model string, last *status.Status) *StatusNotMet {
	err := notMet(model, last, "expected status not reached in %s", model)
	return &err
}

// IsStatusNotMet reports whether err is any of the condition
// failures.
func IsStatusNotMet(err error) bool {
	switch errors.Cause(err).(type) {
	case *StatusNotMet, *AgentsNotStarted, *WorkloadsNotReady,
		*ApplicationsNotStarted, *VersionsNotUpdated:
		return true
	}
	return false
}

// AgentsNotStarted is reported when agents do not all reach a ready
// state in time.
type AgentsNotStarted struct {
	StatusNotMet
}

// NewAgentsNotStarted returns an AgentsNotStarted failure.
func NewAgentsNotStarted(model string, last *status.Status) *AgentsNotStarted {
	return &AgentsNotStarted{notMet(model, last, "timed out waiting for agents to start in %s", model)}
}

// IsAgentsNotStarted reports whether err is an AgentsNotStarted.
func IsAgentsNotStarted(err error) bool {
	_, ok := errors.Cause(err).(*AgentsNotStarted)
	return ok
}

// WorkloadsNotReady is reported when unit workloads do not all reach
// a ready state in time.
type WorkloadsNotReady struct {
	StatusNotMet
}

// NewWorkloadsNotReady returns a WorkloadsNotReady failure.
func NewWorkloadsNotReady(model string, last *status.Status) *WorkloadsNotReady {
	return &WorkloadsNotReady{notMet(model, last, "workloads not ready in %s", model)}
}

// IsWorkloadsNotReady reports whether err is a WorkloadsNotReady.
func IsWorkloadsNotReady(err error) bool {
	_, ok := errors.Cause(err).(*WorkloadsNotReady)
	return ok
}

// ApplicationsNotStarted is reported when a deploy does not surface
// the expected applications in time.
type ApplicationsNotStarted struct {
	StatusNotMet
}

// NewApplicationsNotStarted returns an ApplicationsNotStarted
// failure.
func NewApplicationsNotStarted(model string, last *status.Status) *ApplicationsNotStarted {
	return &ApplicationsNotStarted{notMet(model, last, "timed out waiting for applications to start in %s", model)}
}

// IsApplicationsNotStarted reports whether err is an
// ApplicationsNotStarted.
func IsApplicationsNotStarted(err error) bool {
	_, ok := errors.Cause(err).(*ApplicationsNotStarted)
	return ok
}

// VersionsNotUpdated is reported when agents do not all reach a
// target version in time.
type VersionsNotUpdated struct {
	StatusNotMet
}

// NewVersionsNotUpdated returns a VersionsNotUpdated failure.
func NewVersionsNotUpdated(model string, last *status.Status) *VersionsNotUpdated {
	return &VersionsNotUpdated{notMet(model, last, "some agent versions did not update in %s", model)}
}

// IsVersionsNotUpdated reports whether err is a VersionsNotUpdated.
func IsVersionsNotUpdated(err error) bool {
	_, ok := errors.Cause(err).(*VersionsNotUpdated)
	return ok
}
