// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/juju/cmd/v3"
	"github.com/juju/cmd/v3/cmdtesting"
	"github.com/juju/errors"
	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/jujutest/status"
	coretesting "github.com/juju/jujutest/testing"
	"github.com/juju/jujutest/wait"
)

type waitSuite struct {
	coretesting.FakeHomeSuite
}

var _ = gc.Suite(&waitSuite{})

const startedYAML = `
model:
  name: testing
  controller: ctrl
  version: 2.9.29
machines:
  "0":
    juju-status:
      current: started
applications:
  mysql:
    units:
      mysql/0:
        juju-status:
          current: idle
        workload-status:
          current: active
`

const pendingYAML = `
model:
  name: testing
  controller: ctrl
  version: 2.9.29
machines:
  "0":
    juju-status:
      current: pending
applications:
  mysql:
    units:
      mysql/0:
        juju-status:
          current: allocating
        workload-status:
          current: waiting
`

const blockedYAML = `
model:
  name: testing
  controller: ctrl
  version: 2.9.29
machines:
  "0":
    juju-status:
      current: started
applications:
  mysql:
    units:
      mysql/0:
        juju-status:
          current: idle
        workload-status:
          current: blocked
          message: need config
`

type stubClient struct {
	stub   *jujutesting.Stub
	status *status.Status
}

func (s *stubClient) WaitForStarted(timeout time.Duration) (*status.Status, error) {
	s.stub.AddCall("WaitForStarted", timeout)
	return s.status, s.stub.NextErr()
}

func (s *stubClient) WaitForWorkloads(timeout time.Duration) (*status.Status, error) {
	s.stub.AddCall("WaitForWorkloads", timeout)
	return s.status, s.stub.NextErr()
}

// newCommand wires a waitCommand straight to a stub client.
func (s *waitSuite) newCommand(client *stubClient) cmd.Command {
	return &waitCommand{
		newClient: func(*cmd.Context) (waitClient, error) {
			return client, nil
		},
	}
}

func (s *waitSuite) TestSmartSummary(c *gc.C) {
	client := &stubClient{
		stub:   &jujutesting.Stub{},
		status: coretesting.MustParseStatus(startedYAML),
	}
	ctx, err := cmdtesting.RunCommand(c, s.newCommand(client))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), gc.Equals, "testing: agents started after under a second\n")
	c.Check(cmdtesting.Stderr(ctx), gc.Equals, "")
	client.stub.CheckCallNames(c, "WaitForStarted")
	client.stub.CheckCall(c, 0, "WaitForStarted", defaultWaitTimeout)
}

func (s *waitSuite) TestWorkloadsFlag(c *gc.C) {
	client := &stubClient{
		stub:   &jujutesting.Stub{},
		status: coretesting.MustParseStatus(startedYAML),
	}
	ctx, err := cmdtesting.RunCommand(c, s.newCommand(client), "--workloads")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), gc.Equals, "testing: agents started, workloads active after under a second\n")
	client.stub.CheckCallNames(c, "WaitForStarted", "WaitForWorkloads")
}

func (s *waitSuite) TestTimeoutFlag(c *gc.C) {
	client := &stubClient{
		stub:   &jujutesting.Stub{},
		status: coretesting.MustParseStatus(startedYAML),
	}
	_, err := cmdtesting.RunCommand(c, s.newCommand(client), "--timeout", "90m")
	c.Assert(err, jc.ErrorIsNil)
	client.stub.CheckCall(c, 0, "WaitForStarted", 90*time.Minute)
}

func (s *waitSuite) TestYAMLFormat(c *gc.C) {
	client := &stubClient{
		stub:   &jujutesting.Stub{},
		status: coretesting.MustParseStatus(startedYAML),
	}
	ctx, err := cmdtesting.RunCommand(c, s.newCommand(client), "--workloads", "--format", "yaml")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), jc.YAMLEquals, waitSummary{
		Model:     "testing",
		Elapsed:   "under a second",
		Agents:    map[string][]string{"started": {"0"}, "idle": {"mysql/0"}},
		Workloads: map[string][]string{"active": {"mysql/0"}},
	})
}

func (s *waitSuite) TestJSONFormat(c *gc.C) {
	client := &stubClient{
		stub:   &jujutesting.Stub{},
		status: coretesting.MustParseStatus(startedYAML),
	}
	ctx, err := cmdtesting.RunCommand(c, s.newCommand(client), "--format", "json")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), jc.JSONEquals, waitSummary{
		Model:   "testing",
		Elapsed: "under a second",
		Agents:  map[string][]string{"started": {"0"}, "idle": {"mysql/0"}},
	})
}

func (s *waitSuite) TestBlockedReport(c *gc.C) {
	client := &stubClient{stub: &jujutesting.Stub{}}
	client.stub.SetErrors(wait.NewAgentsNotStarted("testing", coretesting.MustParseStatus(pendingYAML)))
	ctx, err := cmdtesting.RunCommand(c, s.newCommand(client))
	c.Assert(err, gc.ErrorMatches, "timed out waiting for agents to start in testing")
	c.Check(err, jc.Satisfies, wait.IsStatusNotMet)
	c.Check(cmdtesting.Stdout(ctx), gc.Equals, "")
	c.Check(cmdtesting.Stderr(ctx), gc.Equals, "allocating: mysql/0\npending: 0\n")
}

func (s *waitSuite) TestBlockedWorkloadsReport(c *gc.C) {
	client := &stubClient{
		stub:   &jujutesting.Stub{},
		status: coretesting.MustParseStatus(startedYAML),
	}
	client.stub.SetErrors(nil, wait.NewWorkloadsNotReady("testing", coretesting.MustParseStatus(blockedYAML)))
	ctx, err := cmdtesting.RunCommand(c, s.newCommand(client), "--workloads")
	c.Assert(err, gc.ErrorMatches, "workloads not ready in testing")
	c.Check(cmdtesting.Stderr(ctx), gc.Equals, "blocked: mysql/0\n")
}

func (s *waitSuite) TestClientErrorReported(c *gc.C) {
	command := &waitCommand{
		newClient: func(*cmd.Context) (waitClient, error) {
			return nil, errors.New("no juju for you")
		},
	}
	_, err := cmdtesting.RunCommand(c, command)
	c.Assert(err, gc.ErrorMatches, "no juju for you")
}

func (s *waitSuite) TestBadTimeout(c *gc.C) {
	_, err := cmdtesting.RunCommand(c, newWaitCommand(), "--timeout", "0s")
	c.Assert(err, gc.ErrorMatches, "timeout 0s not valid")
}

func (s *waitSuite) TestUnexpectedArgs(c *gc.C) {
	_, err := cmdtesting.RunCommand(c, newWaitCommand(), "bogus")
	c.Assert(err, gc.ErrorMatches, `unrecognized args: \["bogus"\]`)
}

func (s *waitSuite) TestProgressDiscardedOffTerminal(c *gc.C) {
	ctx := cmdtesting.Context(c)
	command := &waitCommand{}
	c.Check(command.progressWriter(ctx), gc.Equals, io.Discard)
}

func (s *waitSuite) TestProgressOnTerminal(c *gc.C) {
	ptmx, tty, err := pty.Open()
	c.Assert(err, jc.ErrorIsNil)
	defer func() { _ = ptmx.Close() }()
	defer func() { _ = tty.Close() }()

	ctx := cmdtesting.Context(c)
	ctx.Stderr = tty
	command := &waitCommand{}
	c.Check(command.progressWriter(ctx), gc.Equals, io.Writer(tty))

	command.quiet = true
	c.Check(command.progressWriter(ctx), gc.Equals, io.Discard)
}

// writeJuju installs a shell script standing in for the juju binary at
// the head of the PATH.
func (s *waitSuite) writeJuju(c *gc.C, script string) {
	dir := c.MkDir()
	err := os.WriteFile(filepath.Join(dir, "juju"), []byte("#!/bin/sh\n"+script), 0755)
	c.Assert(err, jc.ErrorIsNil)
	s.PatchEnvironment("PATH", dir+":/usr/bin:/bin")
}

func (s *waitSuite) calls(c *gc.C) []string {
	data, err := os.ReadFile(filepath.Join(s.Home, "calls.log"))
	c.Assert(err, jc.ErrorIsNil)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

const scriptPrelude = `
echo "$@" >> "$JUJU_DATA/calls.log"
case "$2" in
version)
	echo 2.9.29-ubuntu-amd64
	;;
switch)
	echo ctrl:admin/testing
	;;
`

func (s *waitSuite) TestRunAgainstBinary(c *gc.C) {
	s.writeJuju(c, scriptPrelude+`
show-status)
	cat <<'EOF'
model:
  name: admin/testing
  controller: ctrl
  version: 2.9.29
machines:
  "0":
    juju-status:
      current: started
applications:
  mysql:
    units:
      mysql/0:
        juju-status:
          current: idle
        workload-status:
          current: active
EOF
	;;
esac
`)
	ctx, err := cmdtesting.RunCommand(c, newWaitCommand(), "-q")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), gc.Matches, "admin/testing: agents started after .*\n")
	c.Check(s.calls(c), jc.DeepEquals, []string{
		"--show-log version",
		"--show-log switch",
		"--show-log show-status -m ctrl:admin/testing --format yaml",
	})
}

func (s *waitSuite) TestRunAgainstBinaryModelFlag(c *gc.C) {
	s.writeJuju(c, scriptPrelude+`
show-status)
	cat <<'EOF'
model:
  name: other
  controller: ctrl
  version: 2.9.29
machines: {}
applications: {}
EOF
	;;
esac
`)
	ctx, err := cmdtesting.RunCommand(c, newWaitCommand(), "-q", "-m", "ctrl:other")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cmdtesting.Stdout(ctx), gc.Matches, "other: agents started after .*\n")
	// An explicit controller-qualified model never consults switch.
	c.Check(s.calls(c), jc.DeepEquals, []string{
		"--show-log version",
		"--show-log show-status -m ctrl:other --format yaml",
	})
}

func (s *waitSuite) TestRunAgainstBinaryTimesOut(c *gc.C) {
	s.writeJuju(c, scriptPrelude+`
show-status)
	cat <<'EOF'
model:
  name: admin/testing
  controller: ctrl
  version: 2.9.29
machines:
  "0":
    juju-status:
      current: pending
applications: {}
EOF
	;;
esac
`)
	ctx, err := cmdtesting.RunCommand(c, newWaitCommand(), "-q", "--timeout", "1s")
	c.Assert(err, gc.ErrorMatches, "timed out waiting for agents to start in admin/testing")
	c.Check(err, jc.Satisfies, wait.IsAgentsNotStarted)
	c.Check(cmdtesting.Stderr(ctx), gc.Equals, "pending: 0\n")
}
