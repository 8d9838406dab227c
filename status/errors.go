// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"fmt"
	"regexp"
	"time"

	"github.com/juju/errors"
)

// StatusError is implemented by every error produced when classifying
// status items. Lower Priority values are more severe; a poll loop may
// keep waiting on a Recoverable error but should abort on a fatal one.
type StatusError interface {
	error

	// EntityName returns the machine, unit or application the error
	// is about.
	EntityName() string

	// Recoverable reports whether the entity may still transition out
	// of the error state without intervention.
	Recoverable() bool

	// Priority orders errors by severity. Lower is more severe.
	Priority() int
}

const (
	priorityProvisioning = iota
	priorityStuckAllocating
	priorityMachine
	priorityInstall
	priorityAgentUnresolved
	priorityHookFailed
	priorityUnit
	priorityApp
	priorityAgent
	priorityGeneric
)

type statusError struct {
	entity      string
	message     string
	priority    int
	recoverable bool
}

func (e *statusError) Error() string {
	if e.message == "" {
		return e.entity
	}
	return fmt.Sprintf("%s: %s", e.entity, e.message)
}

// EntityName is part of StatusError.
func (e *statusError) EntityName() string {
	return e.entity
}

// Recoverable is part of StatusError.
func (e *statusError) Recoverable() bool {
	return e.recoverable
}

// Priority is part of StatusError.
func (e *statusError) Priority() int {
	return e.priority
}

// AsStatusError returns the StatusError wrapped in err, if any.
func AsStatusError(err error) (StatusError, bool) {
	se, ok := errors.Cause(err).(StatusError)
	return se, ok
}

// MachineError indicates a machine whose instance is in an error
// state. It is fatal: the machine will not recover on its own.
type MachineError struct {
	statusError
}

// NewMachineError returns a MachineError for the given machine.
func NewMachineError(machine, message string) *MachineError {
	return &MachineError{statusError{
		entity:      machine,
		message:     message,
		priority:    priorityMachine,
		recoverable: false,
	}}
}

// IsMachineError reports whether err is a MachineError.
func IsMachineError(err error) bool {
	_, ok := errors.Cause(err).(*MachineError)
	return ok
}

// ProvisioningError indicates a machine that reported a provisioning
// error. Provisioning may be retried, so the error is recoverable.
type ProvisioningError struct {
	statusError
}

// NewProvisioningError returns a ProvisioningError for the given
// machine.
func NewProvisioningError(machine, message string) *ProvisioningError {
	return &ProvisioningError{statusError{
		entity:      machine,
		message:     message,
		priority:    priorityProvisioning,
		recoverable: true,
	}}
}

// IsProvisioningError reports whether err is a ProvisioningError.
func IsProvisioningError(err error) bool {
	_, ok := errors.Cause(err).(*ProvisioningError)
	return ok
}

// StuckAllocatingError indicates a machine that did not transition out
// of the allocating state. Only meaningful once a deadline has passed,
// so it is classified recoverable and surfaces at timeout.
type StuckAllocatingError struct {
	statusError
}

// NewStuckAllocatingError returns a StuckAllocatingError for the given
// machine.
func NewStuckAllocatingError(machine, message string) *StuckAllocatingError {
	return &StuckAllocatingError{statusError{
		entity:      machine,
		message:     message,
		priority:    priorityStuckAllocating,
		recoverable: true,
	}}
}

// IsStuckAllocatingError reports whether err is a StuckAllocatingError.
func IsStuckAllocatingError(err error) bool {
	_, ok := errors.Cause(err).(*StuckAllocatingError)
	return ok
}

// UnitError indicates a unit whose workload is in an error state.
type UnitError struct {
	statusError
}

// NewUnitError returns a UnitError for the given unit.
func NewUnitError(unit, message string) *UnitError {
	return &UnitError{statusError{
		entity:      unit,
		message:     message,
		priority:    priorityUnit,
		recoverable: true,
	}}
}

// IsUnitError reports whether err is a UnitError.
func IsUnitError(err error) bool {
	_, ok := errors.Cause(err).(*UnitError)
	return ok
}

var hookNamePattern = regexp.MustCompile(`^hook failed: "([^"]*)"$`)

// HookFailedError indicates a unit hook failed.
type HookFailedError struct {
	statusError
}

// NewHookFailedError returns a HookFailedError for the given unit. A
// message of the exact form `hook failed: "<name>"` is reduced to the
// hook name.
func NewHookFailedError(unit, message string) *HookFailedError {
	if match := hookNamePattern.FindStringSubmatch(message); match != nil {
		message = match[1]
	}
	return &HookFailedError{statusError{
		entity:      unit,
		message:     message,
		priority:    priorityHookFailed,
		recoverable: true,
	}}
}

// IsHookFailedError reports whether err is a HookFailedError.
func IsHookFailedError(err error) bool {
	_, ok := errors.Cause(err).(*HookFailedError)
	return ok
}

// InstallError indicates a unit's install hook failed. Charms retry
// the install hook, so the error is recoverable.
type InstallError struct {
	statusError
}

// NewInstallError returns an InstallError for the given unit.
func NewInstallError(unit, message string) *InstallError {
	if match := hookNamePattern.FindStringSubmatch(message); match != nil {
		message = match[1]
	}
	return &InstallError{statusError{
		entity:      unit,
		message:     message,
		priority:    priorityInstall,
		recoverable: true,
	}}
}

// IsInstallError reports whether err is an InstallError.
func IsInstallError(err error) bool {
	_, ok := errors.Cause(err).(*InstallError)
	return ok
}

// AppError indicates an application whose status is error.
type AppError struct {
	statusError
}

// NewAppError returns an AppError for the given application.
func NewAppError(app, message string) *AppError {
	return &AppError{statusError{
		entity:      app,
		message:     message,
		priority:    priorityApp,
		recoverable: true,
	}}
}

// IsAppError reports whether err is an AppError.
func IsAppError(err error) bool {
	_, ok := errors.Cause(err).(*AppError)
	return ok
}

// AgentError indicates a juju agent in an error state.
type AgentError struct {
	statusError
}

// NewAgentError returns an AgentError for the given entity.
func NewAgentError(entity, message string) *AgentError {
	return &AgentError{statusError{
		entity:      entity,
		message:     message,
		priority:    priorityAgent,
		recoverable: true,
	}}
}

// IsAgentError reports whether err is an AgentError.
func IsAgentError(err error) bool {
	_, ok := errors.Cause(err).(*AgentError)
	return ok
}

// AgentUnresolvedError indicates a juju agent that has been sitting in
// an error state since a known time. It is fatal: the agent needs the
// error resolved before it will proceed.
type AgentUnresolvedError struct {
	statusError
	since time.Time
}

// NewAgentUnresolvedError returns an AgentUnresolvedError for the
// given entity.
func NewAgentUnresolvedError(entity, message string, since time.Time) *AgentUnresolvedError {
	return &AgentUnresolvedError{
		statusError: statusError{
			entity:      entity,
			message:     message,
			priority:    priorityAgentUnresolved,
			recoverable: false,
		},
		since: since,
	}
}

// Since returns the time the agent entered the error state.
func (e *AgentUnresolvedError) Since() time.Time {
	return e.since
}

// IsAgentUnresolvedError reports whether err is an
// AgentUnresolvedError.
func IsAgentUnresolvedError(err error) bool {
	_, ok := errors.Cause(err).(*AgentUnresolvedError)
	return ok
}

// ErroredUnit is reported when waiting for agents to start and an
// agent is found in a state it cannot progress out of.
type ErroredUnit struct {
	statusError
}

// NewErroredUnit returns an ErroredUnit for the given entity and
// state.
func NewErroredUnit(entity, state string) *ErroredUnit {
	return &ErroredUnit{statusError{
		entity:      entity,
		message:     fmt.Sprintf("is in state %s", state),
		priority:    priorityGeneric,
		recoverable: false,
	}}
}

func (e *ErroredUnit) Error() string {
	return fmt.Sprintf("%s %s", e.entity, e.message)
}

// IsErroredUnit reports whether err is an ErroredUnit.
func IsErroredUnit(err error) bool {
	_, ok := errors.Cause(err).(*ErroredUnit)
	return ok
}
