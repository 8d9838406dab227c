// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cloud reads and writes the clouds.yaml and credentials.yaml
// files a juju binary consumes from its home directory, so tests can
// seed the clouds and credentials a scenario needs before bootstrap.
package cloud

import (
	"os"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"

	"github.com/juju/jujutest/osenv"
)

// AuthType is the type of authorisation a cloud supports.
type AuthType string

const (
	// AccessKeyAuthType is an authorisation based on a key pair.
	AccessKeyAuthType AuthType = "access-key"

	// UserPassAuthType is an authorisation based on a user and
	// password.
	UserPassAuthType AuthType = "userpass"

	// OAuth1AuthType is an OAuth1 based authorisation.
	OAuth1AuthType AuthType = "oauth1"

	// OAuth2AuthType is an OAuth2 based authorisation.
	OAuth2AuthType AuthType = "oauth2"

	// JSONFileAuthType is an authorisation that reads its material
	// from a file.
	JSONFileAuthType AuthType = "jsonfile"

	// CertificateAuthType is an authorisation based on a certificate.
	CertificateAuthType AuthType = "certificate"

	// EmptyAuthType is the authorisation type used by clouds that do
	// not require credentials.
	EmptyAuthType AuthType = "empty"
)

// Cloud is a cloud definition as it appears in clouds.yaml.
type Cloud struct {
	// Name is the key the cloud is filed under. It is filled in when
	// the cloud is read and is not serialised.
	Name string

	// Type is the provider type, such as "ec2" or "openstack".
	Type string

	// AuthTypes are the auth types the cloud supports.
	AuthTypes []AuthType

	// Endpoint is the default endpoint for the cloud regions.
	Endpoint string

	// IdentityEndpoint is the default identity endpoint for the
	// cloud regions.
	IdentityEndpoint string

	// StorageEndpoint is the default storage endpoint for the cloud
	// regions.
	StorageEndpoint string

	// Regions are the cloud's regions, in the order they appear in
	// the file.
	Regions []Region

	// Config holds optional cloud-specific configuration.
	Config map[string]interface{}
}

// Region is a cloud region.
type Region struct {
	// Name is the key the region is filed under.
	Name string

	// Endpoint is the region's primary endpoint URL.
	Endpoint string

	// IdentityEndpoint is the region's identity endpoint URL.
	IdentityEndpoint string

	// StorageEndpoint is the region's storage endpoint URL.
	StorageEndpoint string
}

type cloudSet struct {
	Clouds map[string]*cloudYAML `yaml:"clouds"`
}

type cloudYAML struct {
	Type             string                 `yaml:"type"`
	AuthTypes        []AuthType             `yaml:"auth-types,omitempty,flow"`
	Endpoint         string                 `yaml:"endpoint,omitempty"`
	IdentityEndpoint string                 `yaml:"identity-endpoint,omitempty"`
	StorageEndpoint  string                 `yaml:"storage-endpoint,omitempty"`
	Regions          yaml.MapSlice          `yaml:"regions,omitempty"`
	Config           map[string]interface{} `yaml:"config,omitempty"`
}

type regionYAML struct {
	Endpoint         string `yaml:"endpoint,omitempty"`
	IdentityEndpoint string `yaml:"identity-endpoint,omitempty"`
	StorageEndpoint  string `yaml:"storage-endpoint,omitempty"`
}

// ParseCloudMetadata parses the contents of a clouds.yaml file. The
// returned map is keyed on cloud name; region order is preserved.
func ParseCloudMetadata(data []byte) (map[string]Cloud, error) {
	var content cloudSet
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, errors.Annotate(err, "cannot unmarshal yaml cloud metadata")
	}
	clouds := make(map[string]Cloud, len(content.Clouds))
	for name, config := range content.Clouds {
		if config == nil {
			config = &cloudYAML{}
		}
		cloud := Cloud{
			Name:             name,
			Type:             config.Type,
			AuthTypes:        config.AuthTypes,
			Endpoint:         config.Endpoint,
			IdentityEndpoint: config.IdentityEndpoint,
			StorageEndpoint:  config.StorageEndpoint,
			Config:           config.Config,
		}
		for _, item := range config.Regions {
			name, ok := item.Key.(string)
			if !ok {
				return nil, errors.Errorf("cannot use %v as a region name", item.Key)
			}
			region, err := decodeRegion(item.Value)
			if err != nil {
				return nil, errors.Annotatef(err, "cannot parse region %q", name)
			}
			cloud.Regions = append(cloud.Regions, Region{
				Name:             name,
				Endpoint:         region.Endpoint,
				IdentityEndpoint: region.IdentityEndpoint,
				StorageEndpoint:  region.StorageEndpoint,
			})
		}
		clouds[name] = cloud
	}
	denormaliseMetadata(clouds)
	return clouds, nil
}

// denormaliseMetadata fills the cloud level endpoints in on every
// region that does not override them, the way the juju CLI resolves a
// region's endpoints.
func denormaliseMetadata(clouds map[string]Cloud) {
	for _, cloud := range clouds {
		for i, region := range cloud.Regions {
			if region.Endpoint == "" {
				region.Endpoint = cloud.Endpoint
			}
			if region.IdentityEndpoint == "" {
				region.IdentityEndpoint = cloud.IdentityEndpoint
			}
			if region.StorageEndpoint == "" {
				region.StorageEndpoint = cloud.StorageEndpoint
			}
			cloud.Regions[i] = region
		}
	}
}

// decodeRegion converts the loosely typed value yaml.v2 produces for
// a region mapping into a regionYAML.
func decodeRegion(value interface{}) (regionYAML, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return regionYAML{}, errors.Trace(err)
	}
	var region regionYAML
	if err := yaml.Unmarshal(data, &region); err != nil {
		return regionYAML{}, errors.Trace(err)
	}
	return region, nil
}

// ParseCloudMetadataFile parses a clouds.yaml file at the given path.
func ParseCloudMetadataFile(file string) (map[string]Cloud, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Trace(err)
	}
	clouds, err := ParseCloudMetadata(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return clouds, nil
}

// ReadCloudMetadataFile reads a clouds.yaml file. A missing file means
// no clouds.
func ReadCloudMetadataFile(file string) (map[string]Cloud, error) {
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ParseCloudMetadata(data)
}

// WriteCloudMetadataFile writes a clouds.yaml file, replacing whatever
// was there. Clouds are written in alphabetical order; their regions
// keep their declared order.
func WriteCloudMetadataFile(file string, clouds map[string]Cloud) error {
	data, err := marshalCloudMetadata(clouds)
	if err != nil {
		return errors.Trace(err)
	}
	releaser, err := acquireLock()
	if err != nil {
		return errors.Annotate(err, "cannot acquire lock to write clouds.yaml")
	}
	defer releaser.Release()
	return errors.Trace(os.WriteFile(file, data, 0600))
}

// PersonalCloudMetadata reads clouds.yaml from the juju home. Missing
// file means no personal clouds.
func PersonalCloudMetadata() (map[string]Cloud, error) {
	return ReadCloudMetadataFile(JujuPersonalCloudsPath())
}

// WritePersonalCloudMetadata writes clouds.yaml to the juju home.
func WritePersonalCloudMetadata(clouds map[string]Cloud) error {
	return errors.Trace(WriteCloudMetadataFile(JujuPersonalCloudsPath(), clouds))
}

// JujuPersonalCloudsPath is the location of the personal clouds.yaml
// file.
func JujuPersonalCloudsPath() string {
	return osenv.JujuXDGDataHomePath("clouds.yaml")
}

func marshalCloudMetadata(clouds map[string]Cloud) ([]byte, error) {
	configs := make(map[string]*cloudYAML, len(clouds))
	for name, cloud := range clouds {
		config := &cloudYAML{
			Type:             cloud.Type,
			AuthTypes:        cloud.AuthTypes,
			Endpoint:         cloud.Endpoint,
			IdentityEndpoint: cloud.IdentityEndpoint,
			StorageEndpoint:  cloud.StorageEndpoint,
			Config:           cloud.Config,
		}
		for _, region := range cloud.Regions {
			config.Regions = append(config.Regions, yaml.MapItem{
				Key: region.Name,
				Value: regionYAML{
					Endpoint:         region.Endpoint,
					IdentityEndpoint: region.IdentityEndpoint,
					StorageEndpoint:  region.StorageEndpoint,
				},
			})
		}
		configs[name] = config
	}
	data, err := yaml.Marshal(cloudSet{configs})
	if err != nil {
		return nil, errors.Annotate(err, "cannot marshal cloud metadata")
	}
	return data, nil
}
