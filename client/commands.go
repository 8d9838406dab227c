// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package client

import (
	"regexp"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
	"gopkg.in/yaml.v2"

	"github.com/juju/jujutest/wait"
)

// DeployArgs holds the optional arguments of Deploy.
type DeployArgs struct {
	// Alias deploys the charm under another application name.
	Alias string

	// To places the first unit on an existing machine or container.
	To string

	// Series overrides the charm's preferred series.
	Series string

	// Force deploys to an unsupported series.
	Force bool

	// Resource attaches a resource, as name=path.
	Resource string

	// Num asks for that many units.
	Num int

	// Storage adds a storage constraint, as name=pool,size.
	Storage string

	// Constraints sets machine constraints for the application.
	Constraints string

	// Bind maps endpoints to spaces.
	Bind string
}

// Deploy deploys a charm to the model. The returned condition reports
// command completion and feeds the deploy's timing record; callers
// that care when the deploy landed wait for it.
func (c *ModelClient) Deploy(charm string, deploy DeployArgs) (*wait.CommandComplete, error) {
	args := []string{charm}
	if deploy.Alias != "" {
		if !names.IsValidApplication(deploy.Alias) {
			return nil, errors.NotValidf("application name %q", deploy.Alias)
		}
		args = append(args, deploy.Alias)
	}
	if deploy.To != "" {
		args = append(args, "--to", deploy.To)
	}
	if deploy.Series != "" {
		args = append(args, "--series", deploy.Series)
	}
	if deploy.Force {
		args = append(args, "--force")
	}
	if deploy.Resource != "" {
		args = append(args, "--resource", deploy.Resource)
	}
	if deploy.Num > 0 {
		args = append(args, "-n", strconv.Itoa(deploy.Num))
	}
	if deploy.Storage != "" {
		args = append(args, "--storage", deploy.Storage)
	}
	if deploy.Constraints != "" {
		args = append(args, "--constraints", deploy.Constraints)
	}
	if deploy.Bind != "" {
		args = append(args, "--bind", deploy.Bind)
	}
	ct, err := c.backend.Juju("deploy", args, c.modelRun())
	if err != nil {
		return nil, errors.Trace(err)
	}
	return wait.NewCommandComplete(wait.NewNoop(), ct), nil
}

// RemoveApplication removes an application. The returned condition
// waits for it to leave status.
func (c *ModelClient) RemoveApplication(application string) (*wait.ApplicationNotPresent, error) {
	if _, err := c.backend.Juju("remove-application", []string{application}, c.modelRun()); err != nil {
		return nil, errors.Trace(err)
	}
	return wait.NewApplicationNotPresent(application, 0), nil
}

// AddUnit adds count units of an application.
func (c *ModelClient) AddUnit(application string, count int) error {
	args := []string{application}
	if count > 1 {
		args = append(args, "-n", strconv.Itoa(count))
	}
	_, err := c.backend.Juju("add-unit", args, c.modelRun())
	return errors.Trace(err)
}

// RemoveUnit removes a unit by name, such as "mysql/0".
func (c *ModelClient) RemoveUnit(unit string) error {
	if !names.IsValidUnit(unit) {
		return errors.NotValidf("unit name %q", unit)
	}
	_, err := c.backend.Juju("remove-unit", []string{unit}, c.modelRun())
	return errors.Trace(err)
}

// AddMachine adds a machine to the model. The spec may be empty for a
// fresh instance, a container type such as "lxd", or an "ssh:" target
// enlisting an existing host.
func (c *ModelClient) AddMachine(spec string) error {
	var args []string
	if spec != "" {
		args = append(args, spec)
	}
	_, err := c.backend.Juju("add-machine", args, c.modelRun())
	return errors.Trace(err)
}

// RemoveMachine removes a machine or container. The returned
// condition waits for it to leave status.
func (c *ModelClient) RemoveMachine(machine string, force bool) (*wait.MachineNotPresent, error) {
	if !names.IsValidMachine(machine) {
		return nil, errors.NotValidf("machine id %q", machine)
	}
	var args []string
	if force {
		args = append(args, "--force")
	}
	args = append(args, machine)
	if _, err := c.backend.Juju("remove-machine", args, c.modelRun()); err != nil {
		return nil, errors.Trace(err)
	}
	return wait.NewMachineNotPresent(machine, 0), nil
}

// AddModel creates a model on this client's controller and returns a
// client for it. The new client shares this client's backend and is
// tracked for TearDown.
func (c *ModelClient) AddModel(name string) (*ModelClient, error) {
	child := c.clone(c.data.Clone(name))
	if _, err := c.backend.Juju("add-model", c.controllerArgs(name), c.noModelRun()); err != nil {
		return nil, errors.Trace(err)
	}
	c.mu.Lock()
	c.models = append(c.models, child)
	c.mu.Unlock()
	return child, nil
}

// DestroyModel destroys this client's model and its storage.
func (c *ModelClient) DestroyModel() error {
	run := c.noModelRun()
	run.Timeout = teardownTimeout
	args := []string{c.FullModelName(), "-y", "--destroy-storage"}
	_, err := c.backend.Juju("destroy-model", args, run)
	return errors.Trace(err)
}

// KillController forcibly tears down the controller and every model
// on it. The binary's exit code is not checked; kill-controller is
// best effort by nature.
func (c *ModelClient) KillController() error {
	run := c.noModelRun()
	run.Timeout = teardownTimeout
	code, err := c.backend.JujuExitCode("kill-controller", []string{c.data.Controller, "-y"}, run)
	if err != nil {
		return errors.Trace(err)
	}
	if code != 0 {
		logger.Warningf("kill-controller exited %d", code)
	}
	return nil
}

// TearDown destroys the models created through AddModel, newest
// first. Soft deadline checks are suspended; cleanup must run however
// late the test finished. All models are attempted and the first
// failure is reported.
func (c *ModelClient) TearDown() error {
	c.mu.Lock()
	models := make([]*ModelClient, len(c.models))
	copy(models, c.models)
	c.models = nil
	c.mu.Unlock()

	var firstErr error
	err := c.backend.IgnoreSoftDeadline(func() error {
		for i := len(models) - 1; i >= 0; i-- {
			if err := models[i].DestroyModel(); err != nil {
				logger.Errorf("cannot destroy model %q: %v", models[i].ModelName(), err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return nil
	})
	if firstErr != nil {
		return errors.Trace(firstErr)
	}
	return errors.Trace(err)
}

// ModelSummary is one entry of a model listing.
type ModelSummary struct {
	Name      string `yaml:"name"`
	ShortName string `yaml:"short-name"`
	UUID      string `yaml:"model-uuid"`
	Owner     string `yaml:"owner"`
	Cloud     string `yaml:"cloud"`
	Region    string `yaml:"region"`
	Life      string `yaml:"life"`
}

type modelList struct {
	Models       []ModelSummary `yaml:"models"`
	CurrentModel string         `yaml:"current-model"`
}

// ListModels returns the models on this client's controller. The
// controller gets two minutes to answer; the listing is polled while
// tearing down deployments whose controller may already be gone.
func (c *ModelClient) ListModels() ([]ModelSummary, error) {
	run := c.noModelRun()
	run.Timeout = 2 * time.Minute
	out, err := c.backend.JujuOutput("list-models", c.controllerArgs("--format", "yaml"), run)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var list modelList
	if err := yaml.Unmarshal(out, &list); err != nil {
		return nil, errors.Annotate(err, "cannot unmarshal model listing")
	}
	return list.Models, nil
}

// ControllerDetails is the details block of a show-controller
// listing.
type ControllerDetails struct {
	UUID         string   `yaml:"uuid"`
	APIEndpoints []string `yaml:"api-endpoints"`
	Cloud        string   `yaml:"cloud"`
	Region       string   `yaml:"region"`
	AgentVersion string   `yaml:"agent-version"`
}

// ControllerAccount is the account block of a show-controller
// listing.
type ControllerAccount struct {
	User   string `yaml:"user"`
	Access string `yaml:"access"`
}

// ControllerModel is a model entry of a show-controller listing.
type ControllerModel struct {
	UUID         string `yaml:"uuid"`
	MachineCount int    `yaml:"machine-count"`
}

// Controller is one controller as reported by show-controller.
type Controller struct {
	Details      ControllerDetails          `yaml:"details"`
	CurrentModel string                     `yaml:"current-model"`
	Models       map[string]ControllerModel `yaml:"models"`
	Account      ControllerAccount          `yaml:"account"`
}

// ShowController returns this client's controller as the binary
// reports it.
func (c *ModelClient) ShowController() (*Controller, error) {
	args := []string{c.data.Controller, "--format", "yaml"}
	out, err := c.backend.JujuOutput("show-controller", args, c.noModelRun())
	if err != nil {
		return nil, errors.Trace(err)
	}
	var controllers map[string]*Controller
	if err := yaml.Unmarshal(out, &controllers); err != nil {
		return nil, errors.Annotate(err, "cannot unmarshal controller listing")
	}
	controller, ok := controllers[c.data.Controller]
	if !ok || controller == nil {
		return nil, errors.NotFoundf("controller %q in listing", c.data.Controller)
	}
	return controller, nil
}

// ModelConfigEntry is one model configuration attribute with its
// provenance.
type ModelConfigEntry struct {
	Value  interface{} `yaml:"value"`
	Source string      `yaml:"source"`
}

// ModelConfig returns the model's full configuration.
func (c *ModelClient) ModelConfig() (map[string]ModelConfigEntry, error) {
	out, err := c.backend.JujuOutput("model-config", []string{"--format", "yaml"}, c.modelRun())
	if err != nil {
		return nil, errors.Trace(err)
	}
	var config map[string]ModelConfigEntry
	if err := yaml.Unmarshal(out, &config); err != nil {
		return nil, errors.Annotate(err, "cannot unmarshal model config")
	}
	return config, nil
}

// ModelConfigValue returns a single model configuration value.
func (c *ModelClient) ModelConfigValue(key string) (string, error) {
	out, err := c.backend.JujuOutput("model-config", []string{key}, c.modelRun())
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(out), nil
}

// SetModelConfig sets a model configuration attribute.
func (c *ModelClient) SetModelConfig(key, value string) error {
	_, err := c.backend.Juju("model-config", []string{key + "=" + value}, c.modelRun())
	return errors.Trace(err)
}

var (
	credentialPrompt = regexp.MustCompile(`Select a credential to save by number, or type Q to quit: ?`)
	cloudPrompt      = regexp.MustCompile(`Select the cloud it belongs to, or type Q to quit.*: ?`)
	savedNotice      = regexp.MustCompile(`Saved .* to cloud \S+`)
)

// AutoloadCredentials drives the interactive autoload-credentials
// prompt, saving the first candidate credential the binary discovers
// against the named cloud.
func (c *ModelClient) AutoloadCredentials(cloudName string) error {
	session, err := c.backend.Expect("autoload-credentials", nil, c.noModelRun())
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = session.Close() }()

	if _, err := session.Expect(credentialPrompt); err != nil {
		return errors.Trace(err)
	}
	if err := session.SendLine("1"); err != nil {
		return errors.Trace(err)
	}
	if _, err := session.Expect(cloudPrompt); err != nil {
		return errors.Trace(err)
	}
	if err := session.SendLine(cloudName); err != nil {
		return errors.Trace(err)
	}
	if _, err := session.Expect(savedNotice); err != nil {
		return errors.Trace(err)
	}
	// The menu loops, offering whatever candidates remain.
	if _, err := session.Expect(credentialPrompt); err != nil {
		return errors.Trace(err)
	}
	if err := session.SendLine("q"); err != nil {
		return errors.Trace(err)
	}
	if err := session.ExpectEOF(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(session.Wait())
}
