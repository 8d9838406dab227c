// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package backend runs a specific juju binary. It assembles argument
// vectors, prepares the shell environment that selects the juju home
// and feature flags, and executes the binary synchronously,
// asynchronously or under a pseudo-terminal. Models are selected with
// -m; the juju home travels in JUJU_DATA.
package backend

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/kballard/go-shellquote"

	"github.com/juju/jujutest/expect"
	"github.com/juju/jujutest/osenv"
	"github.com/juju/jujutest/wait"
)

var logger = loggo.GetLogger("jujutest.backend")

const (
	showLogFlag = "--show-log"
	debugFlag   = "--debug"
	modelFlag   = "-m"
)

// Config holds what a Backend needs to run a juju binary.
type Config struct {
	// FullPath is the path to the juju binary.
	FullPath string
	// Version is the binary's reported version.
	Version string
	// FeatureFlags are the flags this backend may enable. Only the
	// intersection with the flags a caller declares in use reaches
	// the environment.
	FeatureFlags set.Strings
	// Debug makes invocations pass --debug instead of --show-log.
	Debug bool
	// SoftDeadline, when non-zero, fails any invocation that
	// completes after it with SoftDeadlineExceeded.
	SoftDeadline time.Time
	// Clock is used for timings and deadline checks. Defaults to
	// clock.WallClock.
	Clock clock.Clock
	// Timings receives a CommandTime per invocation. Defaults to a
	// fresh Timings.
	Timings *Timings
}

// Backend runs a juju binary.
type Backend struct {
	fullPath     string
	version      string
	featureFlags set.Strings
	debug        bool
	clock        clock.Clock
	timings      *Timings

	mu                 sync.Mutex
	softDeadline       time.Time
	ignoreSoftDeadline bool
}

// New returns a Backend for the given configuration.
func New(config Config) *Backend {
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	if config.FeatureFlags == nil {
		config.FeatureFlags = set.NewStrings()
	}
	if config.Timings == nil {
		config.Timings = NewTimings()
	}
	return &Backend{
		fullPath:     config.FullPath,
		version:      config.Version,
		featureFlags: config.FeatureFlags,
		debug:        config.Debug,
		clock:        config.Clock,
		timings:      config.Timings,
		softDeadline: config.SoftDeadline,
	}
}

// Clone returns a Backend running a different binary with the same
// soft deadline and a shared Timings. Empty fullPath, version or nil
// featureFlags keep the receiver's values.
func (b *Backend) Clone(fullPath, version string, debug bool, featureFlags set.Strings) *Backend {
	if fullPath == "" {
		fullPath = b.fullPath
	}
	if version == "" {
		version = b.version
	}
	if featureFlags == nil {
		featureFlags = b.featureFlags
	}
	b.mu.Lock()
	deadline := b.softDeadline
	b.mu.Unlock()
	return New(Config{
		FullPath:     fullPath,
		Version:      version,
		FeatureFlags: featureFlags,
		Debug:        debug,
		SoftDeadline: deadline,
		Clock:        b.clock,
		Timings:      b.timings,
	})
}

// FullPath returns the path to the juju binary.
func (b *Backend) FullPath() string {
	return b.fullPath
}

// JujuName returns the base name of the juju binary.
func (b *Backend) JujuName() string {
	return filepath.Base(b.fullPath)
}

// Version returns the binary's version.
func (b *Backend) Version() string {
	return b.version
}

// Debug reports whether invocations run with --debug.
func (b *Backend) Debug() bool {
	return b.debug
}

// FeatureFlags returns the flags this backend may enable.
func (b *Backend) FeatureFlags() set.Strings {
	return b.featureFlags
}

// Timings returns the shared invocation records.
func (b *Backend) Timings() *Timings {
	return b.timings
}

// SoftDeadline returns the current soft deadline, zero when unset.
func (b *Backend) SoftDeadline() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.softDeadline
}

// SetSoftDeadline establishes the point past which invocations fail
// with SoftDeadlineExceeded. A zero time clears it.
func (b *Backend) SetSoftDeadline(deadline time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.softDeadline = deadline
}

// CheckTimeouts fails with SoftDeadlineExceeded when the soft
// deadline has passed. It is checked after an invocation completes;
// errors from the invocation itself take precedence.
func (b *Backend) CheckTimeouts() error {
	b.mu.Lock()
	deadline := b.softDeadline
	ignore := b.ignoreSoftDeadline
	b.mu.Unlock()
	if deadline.IsZero() || ignore {
		return nil
	}
	if b.clock.Now().After(deadline) {
		return &SoftDeadlineExceeded{}
	}
	return nil
}

// IgnoreSoftDeadline runs f with soft deadline checks disabled, for
// cleanup that must run however late the test finishes.
func (b *Backend) IgnoreSoftDeadline(f func() error) error {
	b.mu.Lock()
	old := b.ignoreSoftDeadline
	b.ignoreSoftDeadline = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.ignoreSoftDeadline = old
		b.mu.Unlock()
	}()
	return f()
}

// FullArgs assembles the argument vector for a juju invocation: the
// binary name, the logging flag, the command words, the model
// selector and then args. The command may contain several words, such
// as "add-cloud --replace"; the model selector lands after all of
// them. A non-zero timeout wraps the invocation in the system timeout
// command.
func (b *Backend) FullArgs(command string, args []string, model string, timeout time.Duration) ([]string, error) {
	words, err := shellquote.Split(command)
	if err != nil || len(words) == 0 {
		return nil, errors.NotValidf("command %q", command)
	}
	var full []string
	if timeout > 0 {
		full = append(full, timeoutPrefix(timeout)...)
	}
	logging := showLogFlag
	if b.debug {
		logging = debugFlag
	}
	full = append(full, b.JujuName(), logging)
	full = append(full, words...)
	if model != "" {
		full = append(full, modelFlag, model)
	}
	return append(full, args...), nil
}

// timeoutPrefix wraps an invocation in the coreutils timeout command.
func timeoutPrefix(timeout time.Duration) []string {
	return []string{"timeout", fmt.Sprintf("%.2fs", timeout.Seconds())}
}

// ShellEnviron builds the environment for a juju invocation: the
// current process environment with the binary's directory prepended
// to PATH so plugins resolve, the juju home exported as JUJU_DATA and
// JUJU_HOME, and the backend's feature flags, narrowed to usedFlags,
// merged with any flags inherited from the environment.
func (b *Backend) ShellEnviron(usedFlags set.Strings, home string) []string {
	overrides := map[string]string{
		osenv.JujuXDGDataHomeEnvKey: home,
		osenv.JujuHomeEnvKey:        home,
	}
	if b.fullPath != "" {
		path := filepath.Dir(b.fullPath)
		if current := os.Getenv("PATH"); current != "" {
			path = path + string(os.PathListSeparator) + current
		}
		overrides["PATH"] = path
	}
	flags := b.featureFlags.Intersection(usedFlags)
	if merged := osenv.MergeFeatureFlags(flags, osenv.FeatureFlags()); merged != "" {
		overrides[osenv.JujuFeatureFlagEnvKey] = merged
	}

	environ := os.Environ()
	result := make([]string, 0, len(environ)+len(overrides))
	replaced := set.NewStrings()
	for _, entry := range environ {
		key := strings.SplitN(entry, "=", 2)[0]
		if value, ok := overrides[key]; ok {
			result = append(result, key+"="+value)
			replaced.Add(key)
			continue
		}
		result = append(result, entry)
	}
	missing := make([]string, 0, len(overrides))
	for key := range overrides {
		if !replaced.Contains(key) {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		result = append(result, key+"="+overrides[key])
	}
	return result
}

// RunArgs carries the per-invocation parameters shared by the run
// methods.
type RunArgs struct {
	// Model selects the model operated on; empty runs without -m.
	Model string
	// Home is the juju home directory exported as JUJU_DATA.
	Home string
	// UsedFlags declares the feature flags the caller relies on.
	UsedFlags set.Strings
	// Timeout, when non-zero, hard-kills the invocation via the
	// system timeout command.
	Timeout time.Duration
	// ExtraEnv is appended to the invocation environment, overriding
	// any colliding keys.
	ExtraEnv []string
	// MergeStderr folds stderr into captured output (JujuOutput only).
	MergeStderr bool
	// SuppressStderr discards stderr instead of streaming it (Juju
	// and JujuExitCode only).
	SuppressStderr bool
	// Stdout redirects streamed output (JujuAsync only); nil streams
	// to this process's stdout.
	Stdout io.Writer
	// PipeStdout exposes the command's stdout as a pipe on the
	// returned handle (JujuAsync only); it overrides Stdout.
	PipeStdout bool
}

// newCommand builds the exec.Cmd for an invocation. The argument
// vector names the binary by its base name; the path actually
// executed is the backend's full path, or resolution through PATH
// when a timeout prefix puts another program first.
func (b *Backend) newCommand(command string, args []string, run RunArgs) (*exec.Cmd, []string, error) {
	argv, err := b.FullArgs(command, args, run.Model, run.Timeout)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	env := append(b.ShellEnviron(run.UsedFlags, run.Home), run.ExtraEnv...)
	path := b.fullPath
	if argv[0] != b.JujuName() {
		if found, lookErr := exec.LookPath(argv[0]); lookErr == nil {
			path = found
		} else {
			path = argv[0]
		}
	}
	cmd := &exec.Cmd{
		Path: path,
		Args: argv,
		Env:  env,
	}
	return cmd, argv, nil
}

// Juju runs a juju command to completion, streaming its output to
// this process's stdout and stderr. A non-zero exit is returned as an
// ExitError. The timing record lets callers tie a later status change
// back to this invocation.
func (b *Backend) Juju(command string, args []string, run RunArgs) (*wait.CommandTime, error) {
	_, timing, err := b.run(command, args, run, true)
	return timing, errors.Trace(err)
}

// JujuExitCode runs like Juju but reports a non-zero exit through the
// returned code instead of an error.
func (b *Backend) JujuExitCode(command string, args []string, run RunArgs) (int, error) {
	code, _, err := b.run(command, args, run, false)
	return code, err
}

func (b *Backend) run(command string, args []string, run RunArgs, check bool) (int, *wait.CommandTime, error) {
	cmd, argv, err := b.newCommand(command, args, run)
	if err != nil {
		return -1, nil, errors.Trace(err)
	}
	logger.Infof("%s", shellquote.Join(argv...))
	cmd.Stdout = os.Stdout
	if !run.SuppressStderr {
		cmd.Stderr = os.Stderr
	}
	timing := wait.NewCommandTime(b.clock, command, argv, run.ExtraEnv)
	b.timings.Add(timing)
	runErr := cmd.Run()
	code := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return -1, timing, errors.Annotatef(runErr, "cannot run %s", b.JujuName())
		}
		code = exitErr.ExitCode()
	}
	if check && code != 0 {
		return code, timing, NewExitError(argv, code, nil, nil)
	}
	if err := b.CheckTimeouts(); err != nil {
		return code, timing, errors.Trace(err)
	}
	return code, timing, nil
}

// JujuOutput runs a juju command and returns its stdout with trailing
// whitespace trimmed. On non-zero exit the captured output is
// returned alongside an ExitError, wrapped in CannotConnect when
// stderr shows the controller was unreachable.
func (b *Backend) JujuOutput(command string, args []string, run RunArgs) ([]byte, error) {
	cmd, argv, err := b.newCommand(command, args, run)
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger.Debugf("%s", shellquote.Join(argv...))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if run.MergeStderr {
		cmd.Stderr = &stdout
	} else {
		cmd.Stderr = &stderr
	}
	timing := wait.NewCommandTime(b.clock, command, argv, run.ExtraEnv)
	b.timings.Add(timing)
	runErr := cmd.Run()
	timing.ActualCompletion()
	output := bytes.TrimRight(stdout.Bytes(), " \t\r\n")
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return nil, errors.Annotatef(runErr, "cannot run %s", b.JujuName())
		}
		logger.Debugf("stderr: %s", stderr.Bytes())
		exit := NewExitError(argv, exitErr.ExitCode(), output, stderr.Bytes())
		return output, classifyExitError(exit)
	}
	if err := b.CheckTimeouts(); err != nil {
		return output, errors.Trace(err)
	}
	return output, nil
}

// AsyncCommand is a juju invocation started by JujuAsync.
type AsyncCommand struct {
	backend *Backend
	argv    []string
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	timing  *wait.CommandTime
}

// JujuAsync starts a juju command without waiting for it. Output goes
// to this process's stdout unless run redirects or pipes it; stderr
// is always streamed.
func (b *Backend) JujuAsync(command string, args []string, run RunArgs) (*AsyncCommand, error) {
	cmd, argv, err := b.newCommand(command, args, run)
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger.Infof("%s", shellquote.Join(argv...))
	handle := &AsyncCommand{backend: b, argv: argv, cmd: cmd}
	switch {
	case run.PipeStdout:
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, errors.Trace(err)
		}
		handle.stdout = pipe
	case run.Stdout != nil:
		cmd.Stdout = run.Stdout
	default:
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = os.Stderr
	handle.timing = wait.NewCommandTime(b.clock, command, argv, run.ExtraEnv)
	b.timings.Add(handle.timing)
	if err := cmd.Start(); err != nil {
		return nil, errors.Annotatef(err, "cannot run %s", b.JujuName())
	}
	return handle, nil
}

// Stdout returns the command's stdout pipe when started with
// PipeStdout, nil otherwise.
func (c *AsyncCommand) Stdout() io.ReadCloser {
	return c.stdout
}

// Wait blocks until the command exits. A non-zero exit is returned as
// an ExitError.
func (c *AsyncCommand) Wait() error {
	err := c.cmd.Wait()
	c.timing.ActualCompletion()
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return errors.Trace(err)
		}
		return NewExitError(c.argv, exitErr.ExitCode(), nil, nil)
	}
	return errors.Trace(c.backend.CheckTimeouts())
}

// Kill terminates the command. Wait must still be called to release
// it.
func (c *AsyncCommand) Kill() error {
	return c.cmd.Process.Kill()
}

// Expect starts a juju command under a pseudo-terminal and returns a
// session for driving its prompts.
func (b *Backend) Expect(command string, args []string, run RunArgs) (*expect.Session, error) {
	cmd, argv, err := b.newCommand(command, args, run)
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger.Infof("%s", shellquote.Join(argv...))
	session, err := expect.Spawn(cmd)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return session, nil
}

// Pause sleeps for the given duration.
func (b *Backend) Pause(d time.Duration) {
	<-b.clock.After(d)
}
