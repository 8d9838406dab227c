// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package client

import (
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/mohae/deepcopy"

	"github.com/juju/jujutest/cloud"
)

// JujuData describes a model from the client side: its name, the
// controller it lives on, the juju home the binary runs against and
// the provider configuration the model was created with.
type JujuData struct {
	// Model is the model name, unqualified.
	Model string

	// Controller is the name of the controller hosting the model.
	Controller string

	// Owner is the user the model belongs to.
	Owner string

	// Home is the juju home directory, exported as JUJU_DATA on every
	// invocation.
	Home string

	// Config holds the provider attributes the model was created
	// with, such as type, region and default-series.
	Config map[string]interface{}

	// Credentials and Clouds mirror the credentials.yaml and
	// clouds.yaml files in Home.
	Credentials map[string]cloud.CloudCredential
	Clouds      map[string]cloud.Cloud
}

// Provider returns the provider type from the config, such as "ec2".
func (d *JujuData) Provider() string {
	return d.configString("type")
}

// CloudName returns the cloud the model runs on.
func (d *JujuData) CloudName() string {
	return d.configString("cloud")
}

// Region returns the cloud region the model runs in.
func (d *JujuData) Region() string {
	return d.configString("region")
}

func (d *JujuData) configString(key string) string {
	value, _ := d.Config[key].(string)
	return value
}

// Clone returns the data for a sibling model on the same controller.
// The configuration maps are copied so the clone can diverge.
func (d *JujuData) Clone(modelName string) *JujuData {
	clone := *d
	clone.Model = modelName
	if d.Config != nil {
		clone.Config = deepcopy.Copy(d.Config).(map[string]interface{})
	}
	clone.Credentials = copyCredentials(d.Credentials)
	clone.Clouds = copyClouds(d.Clouds)
	return &clone
}

// copyCredentials copies the credential containers. The credentials
// themselves are immutable through their API, so they are shared.
func copyCredentials(in map[string]cloud.CloudCredential) map[string]cloud.CloudCredential {
	if in == nil {
		return nil
	}
	out := make(map[string]cloud.CloudCredential, len(in))
	for name, cred := range in {
		auth := make(map[string]cloud.Credential, len(cred.AuthCredentials))
		for user, c := range cred.AuthCredentials {
			auth[user] = c
		}
		cred.AuthCredentials = auth
		out[name] = cred
	}
	return out
}

func copyClouds(in map[string]cloud.Cloud) map[string]cloud.Cloud {
	if in == nil {
		return nil
	}
	out := make(map[string]cloud.Cloud, len(in))
	for name, cl := range in {
		cl.Regions = append([]cloud.Region(nil), cl.Regions...)
		if cl.Config != nil {
			cl.Config = deepcopy.Copy(cl.Config).(map[string]interface{})
		}
		out[name] = cl
	}
	return out
}

// Load reads credentials.yaml and clouds.yaml from the home
// directory. Missing files leave the corresponding fields nil.
func (d *JujuData) Load() error {
	credentials, err := cloud.ReadCredentialsFile(filepath.Join(d.Home, "credentials.yaml"))
	if err != nil {
		return errors.Trace(err)
	}
	d.Credentials = credentials
	clouds, err := cloud.ReadCloudMetadataFile(filepath.Join(d.Home, "clouds.yaml"))
	if err != nil {
		return errors.Trace(err)
	}
	d.Clouds = clouds
	return nil
}

// Save writes credentials.yaml and clouds.yaml to the home directory
// so the juju binary finds them.
func (d *JujuData) Save() error {
	if d.Credentials != nil {
		err := cloud.WriteCredentialsFile(filepath.Join(d.Home, "credentials.yaml"), d.Credentials)
		if err != nil {
			return errors.Trace(err)
		}
	}
	if d.Clouds != nil {
		err := cloud.WriteCloudMetadataFile(filepath.Join(d.Home, "clouds.yaml"), d.Clouds)
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// QualifiedModelName returns the model name qualified with its owner:
// ("default", "admin") becomes "admin/default". A model name that
// already carries an owner prefix must carry the right one.
func QualifiedModelName(modelName, ownerName string) (string, error) {
	if modelName == "" || ownerName == "" {
		return "", errors.NotValidf("model name %q with owner %q", modelName, ownerName)
	}
	baseName := modelName
	if i := strings.Index(modelName, "/"); i >= 0 {
		prefix := modelName[:i]
		baseName = modelName[i+1:]
		if prefix != ownerName {
			return "", errors.NotValidf("model name %q with owner %q", modelName, ownerName)
		}
	}
	return ownerName + "/" + baseName, nil
}
