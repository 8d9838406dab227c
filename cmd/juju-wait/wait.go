// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/cmd/v3"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/naturalsort"
	"github.com/mattn/go-isatty"

	"github.com/juju/jujutest/backend"
	"github.com/juju/jujutest/client"
	"github.com/juju/jujutest/osenv"
	"github.com/juju/jujutest/status"
	"github.com/juju/jujutest/wait"
)

const waitDoc = `
juju-wait blocks until every machine and unit agent in the model has
started, or the timeout elapses. With --workloads it additionally waits
for every workload to report active status.

The model defaults to the one juju is currently switched to. Progress
is reported on stderr while waiting when it is a terminal; -q silences
it.

Examples:
    juju-wait
    juju-wait -m staging --timeout 30m
    juju-wait --workloads --format yaml
`

const defaultWaitTimeout = 20 * time.Minute

// waitClient is the part of the juju driver the command needs.
type waitClient interface {
	WaitForStarted(timeout time.Duration) (*status.Status, error)
	WaitForWorkloads(timeout time.Duration) (*status.Status, error)
}

func newWaitCommand() cmd.Command {
	wc := &waitCommand{}
	wc.newClient = wc.connectClient
	return wc
}

type waitCommand struct {
	cmd.CommandBase

	model     string
	timeout   time.Duration
	workloads bool
	quiet     bool
	out       cmd.Output

	newClient func(*cmd.Context) (waitClient, error)
}

// Info is part of cmd.Command.
func (c *waitCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "juju-wait",
		Purpose: "Wait for the agents in a model to start.",
		Doc:     strings.TrimSpace(waitDoc),
	}
}

// SetFlags is part of cmd.Command.
func (c *waitCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.model, "m", "", "Model to wait for")
	f.StringVar(&c.model, "model", "", "")
	f.DurationVar(&c.timeout, "timeout", defaultWaitTimeout, "Time to wait before giving up")
	f.BoolVar(&c.workloads, "workloads", false, "Also wait for workloads to become active")
	f.BoolVar(&c.quiet, "q", false, "Do not report progress while waiting")
	f.BoolVar(&c.quiet, "quiet", false, "")
	c.out.AddFlags(f, "smart", map[string]cmd.Formatter{
		"smart": formatSummarySmart,
		"yaml":  cmd.FormatYaml,
		"json":  cmd.FormatJson,
	})
}

// Init is part of cmd.Command.
func (c *waitCommand) Init(args []string) error {
	if c.timeout <= 0 {
		return errors.NotValidf("timeout %v", c.timeout)
	}
	return cmd.CheckEmpty(args)
}

// Run is part of cmd.Command.
func (c *waitCommand) Run(ctx *cmd.Context) error {
	cl, err := c.newClient(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	start := time.Now()
	st, err := cl.WaitForStarted(c.timeout)
	if err == nil && c.workloads {
		st, err = cl.WaitForWorkloads(c.timeout)
	}
	if err != nil {
		c.writeBlocked(ctx, err)
		return errors.Trace(err)
	}
	return errors.Trace(c.out.Write(ctx, c.summarize(st, time.Since(start))))
}

// connectClient finds the juju binary on the PATH, asks it which model
// it is switched to and builds a driver for that model.
func (c *waitCommand) connectClient(ctx *cmd.Context) (waitClient, error) {
	path, err := exec.LookPath("juju")
	if err != nil {
		return nil, errors.Annotate(err, "cannot find a juju binary in PATH")
	}
	home := osenv.JujuXDGDataHomeDir()
	probe := backend.New(backend.Config{FullPath: path})
	version, err := probe.JujuOutput("version", nil, backend.RunArgs{Home: home})
	if err != nil {
		return nil, errors.Trace(err)
	}
	controller, model, err := c.resolveModel(probe, home)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return client.New(client.Config{
		Backend: probe.Clone("", string(version), false, nil),
		Data: &client.JujuData{
			Model:      model,
			Controller: controller,
			Home:       home,
		},
		Out: c.progressWriter(ctx),
	})
}

// resolveModel works out which controller and model to wait on. An
// explicit -m wins, then JUJU_MODEL, then whatever juju is currently
// switched to.
func (c *waitCommand) resolveModel(b client.Backend, home string) (string, string, error) {
	target := c.model
	if target == "" {
		target = os.Getenv(osenv.JujuModelEnvKey)
	}
	if i := strings.IndexRune(target, ':'); i >= 0 {
		return target[:i], target[i+1:], nil
	}
	out, err := b.JujuOutput("switch", nil, backend.RunArgs{Home: home})
	if err != nil {
		return "", "", errors.Trace(err)
	}
	current := strings.TrimSpace(string(out))
	i := strings.IndexRune(current, ':')
	if i < 0 {
		return "", "", errors.Errorf("cannot parse current model %q", current)
	}
	controller, model := current[:i], current[i+1:]
	if target != "" {
		model = target
	}
	return controller, model, nil
}

// progressWriter decides where wait progress goes. It is only shown on
// an interactive terminal, and -q turns it off entirely.
func (c *waitCommand) progressWriter(ctx *cmd.Context) io.Writer {
	if c.quiet {
		return io.Discard
	}
	if f, ok := ctx.Stderr.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return ctx.Stderr
	}
	return io.Discard
}

// writeBlocked reports what was still blocking the wait, one state per
// line, so a failed run says more than "timed out".
func (c *waitCommand) writeBlocked(ctx *cmd.Context, err error) {
	cause := errors.Cause(err)
	carrier, ok := cause.(interface {
		LastStatus() *status.Status
	})
	if !ok {
		return
	}
	last := carrier.LastStatus()
	if last == nil {
		return
	}
	var condition wait.Condition
	if wait.IsWorkloadsNotReady(cause) {
		condition = wait.NewAllWorkloadsActive(0)
	} else {
		condition = wait.NewAgentsStarted(0)
	}
	reasons, perr := condition.Pending(last)
	if perr != nil || len(reasons) == 0 {
		return
	}
	groups := wait.GroupByState(reasons)
	states := make([]string, 0, len(groups))
	for state := range groups {
		states = append(states, state)
	}
	sort.Strings(states)
	for _, state := range states {
		entities := append([]string(nil), groups[state]...)
		naturalsort.Sort(entities)
		fmt.Fprintf(ctx.Stderr, "%s: %s\n", state, strings.Join(entities, ", "))
	}
}

// waitSummary is what a successful wait reports.
type waitSummary struct {
	Model     string              `yaml:"model" json:"model"`
	Elapsed   string              `yaml:"elapsed" json:"elapsed"`
	Agents    map[string][]string `yaml:"agents" json:"agents"`
	Workloads map[string][]string `yaml:"workloads,omitempty" json:"workloads,omitempty"`
}

func (c *waitCommand) summarize(st *status.Status, elapsed time.Duration) waitSummary {
	summary := waitSummary{
		Model:   st.Model.Name,
		Elapsed: humanizeDuration(elapsed),
		Agents:  st.AgentStates(),
	}
	if c.workloads {
		summary.Workloads = st.WorkloadStates()
	}
	return summary
}

// humanizeDuration renders an elapsed duration the way humans say it,
// "12 seconds" rather than "12.00013s".
func humanizeDuration(d time.Duration) string {
	if d < time.Second {
		return "under a second"
	}
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-d), now, "", ""))
}

func formatSummarySmart(writer io.Writer, value interface{}) error {
	summary, ok := value.(waitSummary)
	if !ok {
		return errors.Errorf("unexpected value %#v", value)
	}
	goal := "agents started"
	if summary.Workloads != nil {
		goal = "agents started, workloads active"
	}
	_, err := fmt.Fprintf(writer, "%s: %s after %s\n", summary.Model, goal, summary.Elapsed)
	return errors.Trace(err)
}
