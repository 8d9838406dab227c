// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status_test

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/jujutest/status"
)

type statusSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&statusSuite{})

const startedStatusYAML = `
model:
  name: feature-test
  type: iaas
  controller: feature-controller
  cloud: lxd
  region: localhost
  version: 2.9.29
  model-status:
    current: available
    since: 05 Apr 2022 12:00:00Z
machines:
  "0":
    juju-status:
      current: started
      since: 05 Apr 2022 12:01:00Z
      version: 2.9.29
    dns-name: 10.0.0.1
    ip-addresses: [10.0.0.1]
    instance-id: juju-aa11bb-0
    machine-status:
      current: running
      message: Running
    series: focal
    containers:
      0/lxd/0:
        juju-status:
          current: started
          version: 2.9.29
        instance-id: juju-aa11bb-0-lxd-0
        machine-status:
          current: running
  "1":
    juju-status:
      current: started
      version: 2.9.29
    dns-name: 10.0.0.2
    instance-id: juju-aa11bb-1
    machine-status:
      current: running
applications:
  mysql:
    charm: cs:mysql-58
    series: focal
    exposed: false
    application-status:
      current: active
    units:
      mysql/0:
        workload-status:
          current: active
        juju-status:
          current: idle
          version: 2.9.29
        leader: true
        machine: "0"
        open-ports: [3306/tcp]
        public-address: 10.0.0.1
        subordinates:
          nrpe/0:
            workload-status:
              current: active
            juju-status:
              current: idle
              version: 2.9.29
  wordpress:
    charm: cs:wordpress-5
    exposed: true
    application-status:
      current: active
    units:
      wordpress/0:
        workload-status:
          current: active
        juju-status:
          current: idle
          version: 2.9.29
        machine: "1"
        public-address: 10.0.0.2
`

func parse(c *gc.C, data string) *status.Status {
	st, err := status.ParseStatus([]byte(data))
	c.Assert(err, jc.ErrorIsNil)
	return st
}

func (s *statusSuite) TestParseStatus(c *gc.C) {
	st := parse(c, startedStatusYAML)
	c.Check(st.Model.Name, gc.Equals, "feature-test")
	c.Check(st.Model.Controller, gc.Equals, "feature-controller")
	c.Check(st.Model.Cloud, gc.Equals, "lxd")
	c.Check(st.Model.Version, gc.Equals, "2.9.29")
	c.Check(st.Model.ModelStatus.Current, gc.Equals, status.Value("available"))
	c.Check(st.Machines, gc.HasLen, 2)
	c.Check(st.Applications, gc.HasLen, 2)
	c.Check(st.Applications["wordpress"].Exposed, jc.IsTrue)
	c.Check(st.Raw(), gc.DeepEquals, []byte(startedStatusYAML))
}

func (s *statusSuite) TestParseStatusBadYAML(c *gc.C) {
	_, err := status.ParseStatus([]byte("{.fail"))
	c.Assert(err, gc.ErrorMatches, "cannot parse status output: .*")
}

func machineIDs(machines []status.Machine) []string {
	ids := make([]string, len(machines))
	for i, machine := range machines {
		ids[i] = machine.ID
	}
	return ids
}

func unitNames(units []status.Unit) []string {
	names := make([]string, len(units))
	for i, unit := range units {
		names[i] = unit.Name
	}
	return names
}

func (s *statusSuite) TestHostMachines(c *gc.C) {
	st := parse(c, startedStatusYAML)
	c.Check(machineIDs(st.HostMachines()), gc.DeepEquals, []string{"0", "1"})
}

func (s *statusSuite) TestAllMachinesIncludesContainers(c *gc.C) {
	st := parse(c, startedStatusYAML)
	c.Check(machineIDs(st.AllMachines()), gc.DeepEquals, []string{"0", "0/lxd/0", "1"})
}

func (s *statusSuite) TestMachinesNaturalOrder(c *gc.C) {
	st := parse(c, `
machines:
  "10":
    juju-status:
      current: started
  "2":
    juju-status:
      current: started
  "1":
    juju-status:
      current: started
`)
	c.Check(machineIDs(st.HostMachines()), gc.DeepEquals, []string{"1", "2", "10"})
}

func (s *statusSuite) TestNewMachines(c *gc.C) {
	old := parse(c, `
machines:
  "0":
    juju-status:
      current: started
`)
	st := parse(c, startedStatusYAML)
	c.Check(machineIDs(st.NewMachines(old)), gc.DeepEquals, []string{"0/lxd/0", "1"})
	c.Check(machineIDs(st.NewMachines(nil)), gc.DeepEquals, []string{"0", "0/lxd/0", "1"})
}

func (s *statusSuite) TestUnitsIncludesSubordinates(c *gc.C) {
	st := parse(c, startedStatusYAML)
	c.Check(unitNames(st.Units()), gc.DeepEquals, []string{"mysql/0", "nrpe/0", "wordpress/0"})
}

func (s *statusSuite) TestUnit(c *gc.C) {
	st := parse(c, startedStatusYAML)
	unit, err := st.Unit("wordpress/0")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(unit.Machine, gc.Equals, "1")

	unit, err = st.Unit("nrpe/0")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(unit.WorkloadStatus.Current, gc.Equals, status.Active)
}

func (s *statusSuite) TestUnitNotFound(c *gc.C) {
	st := parse(c, startedStatusYAML)
	_, err := st.Unit("mysql/99")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *statusSuite) TestApplication(c *gc.C) {
	st := parse(c, startedStatusYAML)
	app, err := st.Application("mysql")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(app.Charm, gc.Equals, "cs:mysql-58")

	_, err = st.Application("nope")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *statusSuite) TestMachine(c *gc.C) {
	st := parse(c, startedStatusYAML)
	machine, err := st.Machine("0/lxd/0")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(machine.InstanceID, gc.Equals, "juju-aa11bb-0-lxd-0")

	_, err = st.Machine("42")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *statusSuite) TestInstanceID(c *gc.C) {
	st := parse(c, startedStatusYAML)
	id, err := st.InstanceID("1")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(id, gc.Equals, "juju-aa11bb-1")
}

func (s *statusSuite) TestInstanceIDMissing(c *gc.C) {
	st := parse(c, `
machines:
  "0":
    juju-status:
      current: pending
`)
	_, err := st.InstanceID("0")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *statusSuite) TestMachineDNSName(c *gc.C) {
	st := parse(c, startedStatusYAML)
	name, err := st.MachineDNSName("0")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(name, gc.Equals, "10.0.0.1")
}

func (s *statusSuite) TestOpenPorts(c *gc.C) {
	st := parse(c, startedStatusYAML)
	ports, err := st.OpenPorts("mysql/0")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ports, gc.DeepEquals, []string{"3306/tcp"})

	ports, err = st.OpenPorts("wordpress/0")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ports, gc.HasLen, 0)
}

func (s *statusSuite) TestSubordinateUnits(c *gc.C) {
	st := parse(c, startedStatusYAML)
	subordinates, err := st.SubordinateUnits("mysql")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(subordinates, gc.HasLen, 1)
	c.Check(subordinates["nrpe/0"].JujuStatus.Current, gc.Equals, status.Idle)

	subordinates, err = st.SubordinateUnits("wordpress")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(subordinates, gc.HasLen, 0)
}

func (s *statusSuite) TestAgentStatesAllStarted(c *gc.C) {
	st := parse(c, startedStatusYAML)
	c.Check(st.AgentStates(), gc.DeepEquals, map[string][]string{
		"started": {"0", "0/lxd/0", "1"},
		"idle":    {"mysql/0", "nrpe/0", "wordpress/0"},
	})
}

func (s *statusSuite) TestAgentStatesMixed(c *gc.C) {
	st := parse(c, `
machines:
  "0":
    juju-status:
      current: started
  "1":
    juju-status:
      current: pending
  "2": {}
applications:
  mysql:
    units:
      mysql/0:
        juju-status:
          current: started
`)
	c.Check(st.AgentStates(), gc.DeepEquals, map[string][]string{
		"started":  {"0", "mysql/0"},
		"pending":  {"1"},
		"no-agent": {"2"},
	})
}

func (s *statusSuite) TestWorkloadStates(c *gc.C) {
	st := parse(c, startedStatusYAML)
	c.Check(st.WorkloadStates(), gc.DeepEquals, map[string][]string{
		"active": {"mysql/0", "nrpe/0", "wordpress/0"},
	})
}

func (s *statusSuite) TestWorkloadStatesMixed(c *gc.C) {
	st := parse(c, `
applications:
  mysql:
    units:
      mysql/0:
        workload-status:
          current: blocked
      mysql/1: {}
`)
	c.Check(st.WorkloadStates(), gc.DeepEquals, map[string][]string{
		"blocked": {"mysql/0"},
		"unknown": {"mysql/1"},
	})
}

func (s *statusSuite) TestCheckAgentsStartedAllStarted(c *gc.C) {
	st := parse(c, startedStatusYAML)
	states, err := st.CheckAgentsStarted()
	c.Assert(err, jc.ErrorIsNil)
	c.Check(states, gc.IsNil)
}

func (s *statusSuite) TestCheckAgentsStartedPending(c *gc.C) {
	st := parse(c, `
machines:
  "0":
    juju-status:
      current: started
  "1":
    juju-status:
      current: pending
`)
	states, err := st.CheckAgentsStarted()
	c.Assert(err, jc.ErrorIsNil)
	c.Check(states, gc.DeepEquals, map[string][]string{
		"started": {"0"},
		"pending": {"1"},
	})
}

func (s *statusSuite) TestCheckAgentsStartedError(c *gc.C) {
	st := parse(c, `
machines:
  "0":
    juju-status:
      current: started
applications:
  mysql:
    units:
      mysql/0:
        juju-status:
          current: error
`)
	states, err := st.CheckAgentsStarted()
	c.Check(states, gc.IsNil)
	c.Assert(err, gc.NotNil)
	c.Check(status.IsErroredUnit(err), jc.IsTrue)
	c.Check(err, gc.ErrorMatches, "mysql/0 is in state error")
}

func (s *statusSuite) TestAgentVersions(c *gc.C) {
	st := parse(c, startedStatusYAML)
	versions := st.AgentVersions()
	c.Check(versions["2.9.29"], gc.DeepEquals,
		[]string{"0", "0/lxd/0", "1", "mysql/0", "nrpe/0", "wordpress/0"})
}

func (s *statusSuite) TestAgentVersionsUnknown(c *gc.C) {
	st := parse(c, `
machines:
  "0":
    juju-status:
      current: started
      version: 2.9.29
  "1":
    juju-status:
      current: started
`)
	c.Check(st.AgentVersions(), gc.DeepEquals, map[string][]string{
		"2.9.29":  {"0"},
		"unknown": {"1"},
	})
}

func (s *statusSuite) TestSinceTime(c *gc.C) {
	info := status.StatusInfo{Since: "05 Apr 2022 12:00:00Z"}
	since, ok := info.SinceTime()
	c.Assert(ok, jc.IsTrue)
	c.Check(since, gc.Equals, time.Date(2022, 4, 5, 12, 0, 0, 0, time.UTC))
}

func (s *statusSuite) TestSinceTimeOffset(c *gc.C) {
	info := status.StatusInfo{Since: "16 Aug 2016 14:33:07+01:00"}
	since, ok := info.SinceTime()
	c.Assert(ok, jc.IsTrue)
	c.Check(since.UTC(), gc.Equals, time.Date(2016, 8, 16, 13, 33, 7, 0, time.UTC))
}

func (s *statusSuite) TestSinceTimeAbsent(c *gc.C) {
	info := status.StatusInfo{}
	_, ok := info.SinceTime()
	c.Check(ok, jc.IsFalse)

	info = status.StatusInfo{Since: "not a time"}
	_, ok = info.SinceTime()
	c.Check(ok, jc.IsFalse)
}
