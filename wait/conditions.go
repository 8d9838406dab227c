// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package wait

import (
	"fmt"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"
	"github.com/juju/version/v2"

	"github.com/juju/jujutest/status"
)

// Default timeouts for the conditions that wait on slow provider
// operations.
const (
	AgentsStartedTimeout   = 20 * time.Minute
	WorkloadsActiveTimeout = 10 * time.Minute
	DeployStartedTimeout   = 20 * time.Minute
)

// AgentsStarted waits for every machine and unit agent to reach a
// ready state.
type AgentsStarted struct {
	Base
}

// NewAgentsStarted returns an AgentsStarted condition. A non-positive
// timeout selects AgentsStartedTimeout.
func NewAgentsStarted(timeout time.Duration) *AgentsStarted {
	if timeout <= 0 {
		timeout = AgentsStartedTimeout
	}
	return &AgentsStarted{NewBase(timeout)}
}

// Pending is part of Condition.
func (c *AgentsStarted) Pending(st *status.Status) ([]BlockingReason, error) {
	states, err := st.CheckAgentsStarted()
	if err != nil {
		return nil, errors.Trace(err)
	}
	var reasons []BlockingReason
	for state, entities := range states {
		for _, entity := range entities {
			reasons = append(reasons, BlockingReason{Entity: entity, State: state})
		}
	}
	return reasons, nil
}

// RaiseError is part of Condition.
func (c *AgentsStarted) RaiseError(model string, last *status.Status) error {
	return NewAgentsNotStarted(model, last)
}

// workloadsReady holds the workload states that need no further
// waiting. Units with no workload at all report unknown.
var workloadsReady = set.NewStrings(string(status.Active), string(status.Unknown))

// AllWorkloadsActive waits for every unit workload, subordinates
// included, to be ready.
type AllWorkloadsActive struct {
	Base
}

// NewAllWorkloadsActive returns an AllWorkloadsActive condition. A
// non-positive timeout selects WorkloadsActiveTimeout.
func NewAllWorkloadsActive(timeout time.Duration) *AllWorkloadsActive {
	if timeout <= 0 {
		timeout = WorkloadsActiveTimeout
	}
	return &AllWorkloadsActive{NewBase(timeout)}
}

// Pending is part of Condition.
func (c *AllWorkloadsActive) Pending(st *status.Status) ([]BlockingReason, error) {
	ready := true
	var reasons []BlockingReason
	for _, unit := range st.Units() {
		state := string(unit.WorkloadStatus.Current)
		if state == "" {
			state = string(status.Unknown)
		}
		if workloadsReady.Contains(state) {
			continue
		}
		ready = false
		reasons = append(reasons, BlockingReason{Entity: unit.Name, State: state})
	}
	if ready {
		return nil, nil
	}
	return reasons, nil
}

// RaiseError is part of Condition.
func (c *AllWorkloadsActive) RaiseError(model string, last *status.Status) error {
	return NewWorkloadsNotReady(model, last)
}

// AllApplicationsActive waits for every application to report an
// active status.
type AllApplicationsActive struct {
	Base
}

// NewAllApplicationsActive returns an AllApplicationsActive
// condition.
func NewAllApplicationsActive(timeout time.Duration) *AllApplicationsActive {
	return &AllApplicationsActive{NewBase(timeout)}
}

// Pending is part of Condition.
func (c *AllApplicationsActive) Pending(st *status.Status) ([]BlockingReason, error) {
	var reasons []BlockingReason
	for _, name := range sortedApplications(st) {
		app := st.Applications[name]
		if app.ApplicationStatus.Current == status.Active {
			continue
		}
		state := string(app.ApplicationStatus.Current)
		if state == "" {
			state = string(status.Unknown)
		}
		reasons = append(reasons, BlockingReason{Entity: name, State: state})
	}
	return reasons, nil
}

// RaiseError is part of Condition.
func (c *AllApplicationsActive) RaiseError(model string, last *status.Status) error {
	return NewStatusNotMet(model, last)
}

// UnitsInstalled waits for at least count units to exist with ready
// agents.
type UnitsInstalled struct {
	Base
	count int
}

// NewUnitsInstalled returns a UnitsInstalled condition.
func NewUnitsInstalled(count int, timeout time.Duration) *UnitsInstalled {
	return &UnitsInstalled{Base: NewBase(timeout), count: count}
}

// Pending is part of Condition.
func (c *UnitsInstalled) Pending(st *status.Status) ([]BlockingReason, error) {
	installed := 0
	var reasons []BlockingReason
	for _, unit := range st.Units() {
		state := string(unit.JujuStatus.Current)
		if status.AgentsReady.Contains(state) {
			installed++
			continue
		}
		if state == "" {
			state = "no-agent"
		}
		reasons = append(reasons, BlockingReason{Entity: unit.Name, State: state})
	}
	if installed >= c.count {
		return nil, nil
	}
	if len(reasons) == 0 {
		reasons = append(reasons, BlockingReason{
			Entity: "units",
			State:  fmt.Sprintf("%d of %d installed", installed, c.count),
		})
	}
	return reasons, nil
}

// RaiseError is part of Condition.
func (c *UnitsInstalled) RaiseError(model string, last *status.Status) error {
	return NewStatusNotMet(model, last)
}

// DeployStarted waits for at least count applications to appear in
// status.
type DeployStarted struct {
	Base
	count int
}

// NewDeployStarted returns a DeployStarted condition. A non-positive
// timeout selects DeployStartedTimeout.
func NewDeployStarted(count int, timeout time.Duration) *DeployStarted {
	if timeout <= 0 {
		timeout = DeployStartedTimeout
	}
	if count < 1 {
		count = 1
	}
	return &DeployStarted{Base: NewBase(timeout), count: count}
}

// Pending is part of Condition.
func (c *DeployStarted) Pending(st *status.Status) ([]BlockingReason, error) {
	if len(st.Applications) >= c.count {
		return nil, nil
	}
	return []BlockingReason{{
		Entity: "applications",
		State:  fmt.Sprintf("%d of %d deployed", len(st.Applications), c.count),
	}}, nil
}

// RaiseError is part of Condition.
func (c *DeployStarted) RaiseError(model string, last *status.Status) error {
	return NewApplicationsNotStarted(model, last)
}

// MachineNotPresent waits for a machine to disappear from status.
type MachineNotPresent struct {
	Base
	machine string
}

// NewMachineNotPresent returns a MachineNotPresent condition for the
// given machine id.
func NewMachineNotPresent(machine string, timeout time.Duration) *MachineNotPresent {
	return &MachineNotPresent{Base: NewBase(timeout), machine: machine}
}

// Pending is part of Condition.
func (c *MachineNotPresent) Pending(st *status.Status) ([]BlockingReason, error) {
	for _, machine := range st.AllMachines() {
		if machine.ID == c.machine {
			return []BlockingReason{{Entity: c.machine, State: "still-present"}}, nil
		}
	}
	return nil, nil
}

// RaiseError is part of Condition.
func (c *MachineNotPresent) RaiseError(model string, last *status.Status) error {
	return errors.Timeoutf("waiting for machine removal %s", c.machine)
}

// ApplicationNotPresent waits for an application to disappear from
// status.
type ApplicationNotPresent struct {
	Base
	application string
}

// NewApplicationNotPresent returns an ApplicationNotPresent condition
// for the named application.
func NewApplicationNotPresent(application string, timeout time.Duration) *ApplicationNotPresent {
	return &ApplicationNotPresent{Base: NewBase(timeout), application: application}
}

// Pending is part of Condition.
func (c *ApplicationNotPresent) Pending(st *status.Status) ([]BlockingReason, error) {
	if _, ok := st.Applications[c.application]; ok {
		return []BlockingReason{{Entity: c.application, State: "still-present"}}, nil
	}
	return nil, nil
}

// RaiseError is part of Condition.
func (c *ApplicationNotPresent) RaiseError(model string, last *status.Status) error {
	return errors.Timeoutf("waiting for application removal %s", c.application)
}

// MachineDown waits for juju to mark a machine agent down. Manual
// machines cannot be removed from the model until then.
type MachineDown struct {
	Base
	machine string
}

// NewMachineDown returns a MachineDown condition for the given
// machine id.
func NewMachineDown(machine string, timeout time.Duration) *MachineDown {
	return &MachineDown{Base: NewBase(timeout), machine: machine}
}

// Pending is part of Condition.
func (c *MachineDown) Pending(st *status.Status) ([]BlockingReason, error) {
	for _, machine := range st.AllMachines() {
		if machine.ID != c.machine {
			continue
		}
		if machine.JujuStatus.Current == status.Down {
			return nil, nil
		}
		return []BlockingReason{{Entity: c.machine, State: string(machine.JujuStatus.Current)}}, nil
	}
	return nil, nil
}

// RaiseError is part of Condition.
func (c *MachineDown) RaiseError(model string, last *status.Status) error {
	return errors.Timeoutf("waiting for juju to determine machine %s down", c.machine)
}

// Version waits for every agent to report the target version.
type Version struct {
	Base
	target string
}

// NewVersion returns a Version condition. The target must parse as a
// juju version number.
func NewVersion(target string, timeout time.Duration) (*Version, error) {
	if _, err := version.Parse(target); err != nil {
		return nil, errors.NotValidf("version %q", target)
	}
	return &Version{Base: NewBase(timeout), target: target}, nil
}

// Pending is part of Condition.
func (c *Version) Pending(st *status.Status) ([]BlockingReason, error) {
	var reasons []BlockingReason
	for _, found := range sortedVersions(st) {
		if found == c.target {
			continue
		}
		for _, agent := range st.AgentVersions()[found] {
			reasons = append(reasons, BlockingReason{Entity: agent, State: found})
		}
	}
	return reasons, nil
}

// RaiseError is part of Condition.
func (c *Version) RaiseError(model string, last *status.Status) error {
	return NewVersionsNotUpdated(model, last)
}

// ModelVersion waits for the model itself to report the target
// version.
type ModelVersion struct {
	Base
	target string
}

// NewModelVersion returns a ModelVersion condition. The target must
// parse as a juju version number.
func NewModelVersion(target string, timeout time.Duration) (*ModelVersion, error) {
	if _, err := version.Parse(target); err != nil {
		return nil, errors.NotValidf("version %q", target)
	}
	return &ModelVersion{Base: NewBase(timeout), target: target}, nil
}

// Pending is part of Condition.
func (c *ModelVersion) Pending(st *status.Status) ([]BlockingReason, error) {
	if st.Model.Version == c.target {
		return nil, nil
	}
	found := st.Model.Version
	if found == "" {
		found = string(status.Unknown)
	}
	return []BlockingReason{{Entity: st.Model.Name, State: found}}, nil
}

// RaiseError is part of Condition.
func (c *ModelVersion) RaiseError(model string, last *status.Status) error {
	return NewVersionsNotUpdated(model, last)
}

// Noop blocks on nothing. Operations that need no settling return it
// so callers can wait uniformly.
type Noop struct {
	Base
}

// NewNoop returns a Noop condition.
func NewNoop() *Noop {
	return &Noop{NewBase(0)}
}

// Pending is part of Condition.
func (c *Noop) Pending(*status.Status) ([]BlockingReason, error) {
	return nil, nil
}

// RaiseError is part of Condition.
func (c *Noop) RaiseError(model string, last *status.Status) error {
	return errors.Errorf("noop condition failed: %s", model)
}

func sortedApplications(st *status.Status) []string {
	names := make([]string, 0, len(st.Applications))
	for name := range st.Applications {
		names = append(names, name)
	}
	naturalsort.Sort(names)
	return names
}

func sortedVersions(st *status.Status) []string {
	versions := st.AgentVersions()
	found := make([]string, 0, len(versions))
	for v := range versions {
		found = append(found, v)
	}
	naturalsort.Sort(found)
	return found
}
