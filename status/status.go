// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package status parses the YAML emitted by "juju status" into a
// queryable snapshot of a model and classifies the status values it
// reports into typed errors.
package status

import (
	"sort"
	"strings"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"
	"gopkg.in/yaml.v2"
)

// Value is a status value reported for an entity, such as "started"
// or "error".
type Value string

const (
	// Agent status values.
	Started    Value = "started"
	Pending    Value = "pending"
	Allocating Value = "allocating"
	Executing  Value = "executing"
	Idle       Value = "idle"
	Failed     Value = "failed"
	Down       Value = "down"
	Lost       Value = "lost"
	Rebooting  Value = "rebooting"
	Unknown    Value = "unknown"

	// Workload and application status values.
	Active      Value = "active"
	Blocked     Value = "blocked"
	Maintenance Value = "maintenance"
	Waiting     Value = "waiting"
	Terminated  Value = "terminated"

	// Machine instance status values.
	Provisioning      Value = "provisioning"
	Running           Value = "running"
	ProvisioningError Value = "provisioning error"

	// Error is reported for any kind of entity.
	Error Value = "error"
)

// StatusInfo is one status leaf: the current value plus the details
// reported alongside it.
type StatusInfo struct {
	Current Value  `yaml:"current"`
	Message string `yaml:"message,omitempty"`
	Since   string `yaml:"since,omitempty"`
	Version string `yaml:"version,omitempty"`
	Life    string `yaml:"life,omitempty"`
}

// sinceFormats lists the timestamp layouts "juju status" has used for
// the since field.
var sinceFormats = []string{
	"02 Jan 2006 15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	time.RFC3339,
}

// SinceTime parses the since field. It returns false when the field
// is absent or in an unrecognised format.
func (i StatusInfo) SinceTime() (time.Time, bool) {
	if i.Since == "" {
		return time.Time{}, false
	}
	for _, format := range sinceFormats {
		if t, err := time.Parse(format, i.Since); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ModelStatus is the model block of a status snapshot.
type ModelStatus struct {
	Name        string     `yaml:"name"`
	Type        string     `yaml:"type,omitempty"`
	Controller  string     `yaml:"controller"`
	Cloud       string     `yaml:"cloud"`
	Region      string     `yaml:"region,omitempty"`
	Version     string     `yaml:"version"`
	ModelStatus StatusInfo `yaml:"model-status"`
	SLA         string     `yaml:"sla,omitempty"`
}

// MachineStatus is one machine in a status snapshot, including any
// containers hosted on it.
type MachineStatus struct {
	JujuStatus    StatusInfo               `yaml:"juju-status"`
	MachineStatus StatusInfo               `yaml:"machine-status"`
	DNSName       string                   `yaml:"dns-name,omitempty"`
	IPAddresses   []string                 `yaml:"ip-addresses,omitempty"`
	InstanceID    string                   `yaml:"instance-id,omitempty"`
	Series        string                   `yaml:"series,omitempty"`
	Base          string                   `yaml:"base,omitempty"`
	Hardware      string                   `yaml:"hardware,omitempty"`
	Containers    map[string]MachineStatus `yaml:"containers,omitempty"`
}

// ApplicationStatus is one application in a status snapshot.
type ApplicationStatus struct {
	Charm             string                `yaml:"charm"`
	Series            string                `yaml:"series,omitempty"`
	OS                string                `yaml:"os,omitempty"`
	CharmOrigin       string                `yaml:"charm-origin,omitempty"`
	CharmRev          int                   `yaml:"charm-rev,omitempty"`
	Exposed           bool                  `yaml:"exposed"`
	Life              string                `yaml:"life,omitempty"`
	ApplicationStatus StatusInfo            `yaml:"application-status"`
	WorkloadVersion   string                `yaml:"version,omitempty"`
	Relations         map[string][]string   `yaml:"relations,omitempty"`
	SubordinateTo     []string              `yaml:"subordinate-to,omitempty"`
	Units             map[string]UnitStatus `yaml:"units,omitempty"`
}

// UnitStatus is one unit in a status snapshot, including any
// subordinate units attached to it.
type UnitStatus struct {
	WorkloadStatus  StatusInfo            `yaml:"workload-status"`
	JujuStatus      StatusInfo            `yaml:"juju-status"`
	Leader          bool                  `yaml:"leader,omitempty"`
	Machine         string                `yaml:"machine,omitempty"`
	OpenedPorts     []string              `yaml:"open-ports,omitempty"`
	PublicAddress   string                `yaml:"public-address,omitempty"`
	WorkloadVersion string                `yaml:"workload-version,omitempty"`
	Subordinates    map[string]UnitStatus `yaml:"subordinates,omitempty"`
}

// Status is a snapshot of model state as reported by "juju status
// --format yaml".
type Status struct {
	Model        ModelStatus                  `yaml:"model"`
	Machines     map[string]MachineStatus     `yaml:"machines"`
	Applications map[string]ApplicationStatus `yaml:"applications"`

	raw []byte
}

// ParseStatus builds a Status from raw "juju status --format yaml"
// output.
func ParseStatus(data []byte) (*Status, error) {
	var status Status
	if err := yaml.Unmarshal(data, &status); err != nil {
		return nil, errors.Annotate(err, "cannot parse status output")
	}
	status.raw = data
	return &status, nil
}

// Raw returns the original YAML the snapshot was parsed from.
func (s *Status) Raw() []byte {
	return s.raw
}

// Machine pairs a machine id with its status.
type Machine struct {
	ID string
	MachineStatus
}

// Unit pairs a unit name with its status.
type Unit struct {
	Name string
	UnitStatus
}

// HostMachines returns the top-level machines of the snapshot in
// natural order, without their containers.
func (s *Status) HostMachines() []Machine {
	return s.machineList(false)
}

// AllMachines returns every machine in the snapshot in natural order,
// containers following their host.
func (s *Status) AllMachines() []Machine {
	return s.machineList(true)
}

func (s *Status) machineList(containers bool) []Machine {
	var machines []Machine
	for _, id := range sortedMachineKeys(s.Machines) {
		machine := s.Machines[id]
		machines = append(machines, Machine{ID: id, MachineStatus: machine})
		if !containers {
			continue
		}
		for _, cid := range sortedMachineKeys(machine.Containers) {
			machines = append(machines, Machine{ID: cid, MachineStatus: machine.Containers[cid]})
		}
	}
	return machines
}

// NewMachines returns the machines present in this snapshot but not
// in old, containers included.
func (s *Status) NewMachines(old *Status) []Machine {
	seen := make(map[string]bool)
	if old != nil {
		for _, machine := range old.AllMachines() {
			seen[machine.ID] = true
		}
	}
	var machines []Machine
	for _, machine := range s.AllMachines() {
		if !seen[machine.ID] {
			machines = append(machines, machine)
		}
	}
	return machines
}

// Units returns every unit in the snapshot, subordinates included,
// ordered by application then unit in natural order.
func (s *Status) Units() []Unit {
	var units []Unit
	for _, app := range sortedApplicationKeys(s.Applications) {
		for _, name := range sortedUnitKeys(s.Applications[app].Units) {
			unit := s.Applications[app].Units[name]
			units = append(units, Unit{Name: name, UnitStatus: unit})
			for _, sub := range sortedUnitKeys(unit.Subordinates) {
				units = append(units, Unit{Name: sub, UnitStatus: unit.Subordinates[sub]})
			}
		}
	}
	return units
}

// Application returns the named application's status.
func (s *Status) Application(name string) (ApplicationStatus, error) {
	app, ok := s.Applications[name]
	if !ok {
		return ApplicationStatus{}, errors.NotFoundf("application %q", name)
	}
	return app, nil
}

// Unit returns the named unit's status, searching subordinates too.
func (s *Status) Unit(name string) (UnitStatus, error) {
	for _, unit := range s.Units() {
		if unit.Name == name {
			return unit.UnitStatus, nil
		}
	}
	return UnitStatus{}, errors.NotFoundf("unit %q", name)
}

// Machine returns the identified machine's status, searching
// containers too.
func (s *Status) Machine(id string) (MachineStatus, error) {
	for _, machine := range s.AllMachines() {
		if machine.ID == id {
			return machine.MachineStatus, nil
		}
	}
	return MachineStatus{}, errors.NotFoundf("machine %q", id)
}

// InstanceID returns the instance id of the identified machine.
func (s *Status) InstanceID(id string) (string, error) {
	machine, err := s.Machine(id)
	if err != nil {
		return "", errors.Trace(err)
	}
	if machine.InstanceID == "" {
		return "", errors.NotFoundf("instance id for machine %q", id)
	}
	return machine.InstanceID, nil
}

// MachineDNSName returns the DNS name of the identified machine.
func (s *Status) MachineDNSName(id string) (string, error) {
	machine, err := s.Machine(id)
	if err != nil {
		return "", errors.Trace(err)
	}
	if machine.DNSName == "" {
		return "", errors.NotFoundf("dns name for machine %q", id)
	}
	return machine.DNSName, nil
}

// OpenPorts returns the ports opened by the named unit.
func (s *Status) OpenPorts(unitName string) ([]string, error) {
	unit, err := s.Unit(unitName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return unit.OpenedPorts, nil
}

// SubordinateUnits returns the subordinate units attached to units of
// the named application, keyed by subordinate unit name.
func (s *Status) SubordinateUnits(appName string) (map[string]UnitStatus, error) {
	app, err := s.Application(appName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	subordinates := make(map[string]UnitStatus)
	for _, name := range sortedUnitKeys(app.Units) {
		for sub, status := range app.Units[name].Subordinates {
			subordinates[sub] = status
		}
	}
	return subordinates, nil
}

// AgentStates groups machines and units by the current value of their
// juju agent status. An entity reporting no agent status at all is
// grouped under "no-agent". Entries within a state are in natural
// order.
func (s *Status) AgentStates() map[string][]string {
	states := make(map[string][]string)
	add := func(name string, info StatusInfo) {
		state := string(info.Current)
		if state == "" {
			state = "no-agent"
		}
		states[state] = append(states[state], name)
	}
	for _, machine := range s.AllMachines() {
		add(machine.ID, machine.JujuStatus)
	}
	for _, unit := range s.Units() {
		add(unit.Name, unit.JujuStatus)
	}
	return states
}

// WorkloadStates groups units by the current value of their workload
// status. A unit reporting no workload status is grouped under
// "unknown". Entries within a state are in natural order.
func (s *Status) WorkloadStates() map[string][]string {
	states := make(map[string][]string)
	for _, unit := range s.Units() {
		state := string(unit.WorkloadStatus.Current)
		if state == "" {
			state = string(Unknown)
		}
		states[state] = append(states[state], unit.Name)
	}
	return states
}

// AgentsReady holds the agent states that count as fully started.
// Machine agents report started, unit agents idle.
var AgentsReady = set.NewStrings(string(Started), string(Idle))

// CheckAgentsStarted checks whether every agent has reached a ready
// state. It returns nil, nil when they all have, and the AgentStates
// grouping otherwise. An agent in a state it cannot progress out of
// is reported as an ErroredUnit.
func (s *Status) CheckAgentsStarted() (map[string][]string, error) {
	states := s.AgentStates()
	ready := true
	for state := range states {
		if !AgentsReady.Contains(state) {
			ready = false
			break
		}
	}
	if ready {
		return nil, nil
	}
	for _, state := range sortedStateKeys(states) {
		if strings.Contains(state, "error") {
			return nil, NewErroredUnit(states[state][0], state)
		}
	}
	return states, nil
}

// AgentVersions groups machines and units by the version their agent
// reports. An entity reporting no version is grouped under "unknown".
func (s *Status) AgentVersions() map[string][]string {
	versions := make(map[string][]string)
	add := func(name, version string) {
		if version == "" {
			version = "unknown"
		}
		versions[version] = append(versions[version], name)
	}
	for _, machine := range s.AllMachines() {
		add(machine.ID, machine.JujuStatus.Version)
	}
	for _, unit := range s.Units() {
		add(unit.Name, unit.JujuStatus.Version)
	}
	return versions
}

// Errors classifies every status item in the snapshot and returns the
// resulting errors, most severe first. Recoverable errors are dropped
// when ignoreRecoverable is true.
func (s *Status) Errors(ignoreRecoverable bool) []error {
	var errs []error
	for _, item := range s.Items() {
		err := item.AsError()
		if err == nil {
			continue
		}
		if ignoreRecoverable {
			if se, ok := AsStatusError(err); ok && se.Recoverable() {
				continue
			}
		}
		errs = append(errs, err)
	}
	sort.SliceStable(errs, func(i, j int) bool {
		return errorPriority(errs[i]) < errorPriority(errs[j])
	})
	return errs
}

// HighestError returns the most severe status error in the snapshot,
// or nil when there is none. Recoverable errors are ignored when
// ignoreRecoverable is true.
func (s *Status) HighestError(ignoreRecoverable bool) error {
	errs := s.Errors(ignoreRecoverable)
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

func errorPriority(err error) int {
	if se, ok := AsStatusError(err); ok {
		return se.Priority()
	}
	return priorityGeneric
}

func sortedStateKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedMachineKeys(m map[string]MachineStatus) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	naturalsort.Sort(keys)
	return keys
}

func sortedApplicationKeys(m map[string]ApplicationStatus) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	naturalsort.Sort(keys)
	return keys
}

func sortedUnitKeys(m map[string]UnitStatus) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	naturalsort.Sort(keys)
	return keys
}
