// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"fmt"
	"regexp"

	"github.com/juju/errors"
)

// The kinds of status leaf a snapshot carries.
const (
	KindApplication = "application-status"
	KindWorkload    = "workload-status"
	KindMachine     = "machine-status"
	KindJuju        = "juju-status"
)

// Item is one status leaf of a snapshot: the status of kind Kind
// reported for the named entity.
type Item struct {
	Kind string
	Name string
	Info StatusInfo
}

// Items returns every status leaf in the snapshot in a stable order:
// machines first (machine-status then juju-status, containers
// included), then each application (application-status) with its
// units and subordinates (workload-status then juju-status).
func (s *Status) Items() []Item {
	var items []Item
	for _, machine := range s.AllMachines() {
		items = append(items,
			Item{Kind: KindMachine, Name: machine.ID, Info: machine.MachineStatus},
			Item{Kind: KindJuju, Name: machine.ID, Info: machine.JujuStatus},
		)
	}
	for _, name := range sortedApplicationKeys(s.Applications) {
		app := s.Applications[name]
		items = append(items, Item{Kind: KindApplication, Name: name, Info: app.ApplicationStatus})
		for _, unitName := range sortedUnitKeys(app.Units) {
			items = append(items, unitItems(unitName, app.Units[unitName])...)
		}
	}
	return items
}

func unitItems(name string, unit UnitStatus) []Item {
	items := []Item{
		{Kind: KindWorkload, Name: name, Info: unit.WorkloadStatus},
		{Kind: KindJuju, Name: name, Info: unit.JujuStatus},
	}
	for _, sub := range sortedUnitKeys(unit.Subordinates) {
		items = append(items, unitItems(sub, unit.Subordinates[sub])...)
	}
	return items
}

// installHookPattern picks out hook failures caused by the install
// hook, including nested invocations such as
// `hook failed: "install" for machine-health`.
var installHookPattern = regexp.MustCompile(`^hook failed: "([^"]*install[^"]*)"`)

// hookFailedPattern matches any hook failure message.
var hookFailedPattern = regexp.MustCompile(`^hook failed: "([^"]*)"`)

// AsError returns a typed error describing the problem this item
// reports, or nil when the item does not indicate one.
//
// Values of error, failed, down and provisioning error always
// classify; allocating classifies only for machine-status, where it
// marks a machine stuck waiting for an instance.
func (i Item) AsError() error {
	current := i.Info.Current
	switch current {
	case Error, Failed, Down, ProvisioningError:
	case Allocating:
		if i.Kind != KindMachine {
			return nil
		}
	default:
		return nil
	}
	switch i.Kind {
	case KindApplication:
		return NewAppError(i.Name, i.Info.Message)
	case KindWorkload:
		switch {
		case installHookPattern.MatchString(i.Info.Message):
			return NewInstallError(i.Name, i.Info.Message)
		case hookFailedPattern.MatchString(i.Info.Message):
			return NewHookFailedError(i.Name, i.Info.Message)
		default:
			return NewUnitError(i.Name, i.Info.Message)
		}
	case KindMachine:
		switch current {
		case ProvisioningError:
			return NewProvisioningError(i.Name, i.Info.Message)
		case Allocating:
			return NewStuckAllocatingError(i.Name, fmt.Sprintf("Stuck allocating.  Last message: %s", i.Info.Message))
		default:
			return NewMachineError(i.Name, i.Info.Message)
		}
	case KindJuju:
		if since, ok := i.Info.SinceTime(); ok {
			return NewAgentUnresolvedError(i.Name, i.Info.Message, since)
		}
		return NewAgentError(i.Name, i.Info.Message)
	}
	return errors.Errorf("unknown status kind %q for %q", i.Kind, i.Name)
}
