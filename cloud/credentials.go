// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cloud

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
	"gopkg.in/yaml.v2"
)

// CloudCredential contains all the credentials for one cloud, along
// with the defaults the juju binary falls back to.
type CloudCredential struct {
	// DefaultCredential is the named credential used when a command
	// does not select one.
	DefaultCredential string

	// DefaultRegion is the region used when a command does not
	// select one.
	DefaultRegion string

	// AuthCredentials are the credentials keyed on name.
	AuthCredentials map[string]Credential
}

type cloudCredentialYAML struct {
	DefaultCredential string                `yaml:"default-credential,omitempty"`
	DefaultRegion     string                `yaml:"default-region,omitempty"`
	AuthCredentials   map[string]Credential `yaml:",inline"`
}

// MarshalYAML implements yaml.Marshaler.
func (c CloudCredential) MarshalYAML() (interface{}, error) {
	return cloudCredentialYAML{c.DefaultCredential, c.DefaultRegion, c.AuthCredentials}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CloudCredential) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var inner cloudCredentialYAML
	if err := unmarshal(&inner); err != nil {
		return errors.Trace(err)
	}
	*c = CloudCredential{
		DefaultCredential: inner.DefaultCredential,
		DefaultRegion:     inner.DefaultRegion,
		AuthCredentials:   inner.AuthCredentials,
	}
	return nil
}

// Credential is a single named credential: an auth type plus the
// attributes that type requires.
type Credential struct {
	authType   AuthType
	attributes map[string]string

	// Label is optionally set to describe the credential to a user.
	// It is not serialised.
	Label string
}

// NewCredential returns a new, immutable, Credential.
func NewCredential(authType AuthType, attributes map[string]string) Credential {
	return Credential{authType: authType, attributes: copyStringMap(attributes)}
}

// NewEmptyCredential returns a credential for clouds that require
// none.
func NewEmptyCredential() Credential {
	return Credential{authType: EmptyAuthType}
}

// AuthType returns the credential's auth type.
func (c Credential) AuthType() AuthType {
	return c.authType
}

// Attributes returns a copy of the credential attributes.
func (c Credential) Attributes() map[string]string {
	return copyStringMap(c.attributes)
}

type credentialYAML struct {
	AuthType   AuthType          `yaml:"auth-type"`
	Attributes map[string]string `yaml:",inline"`
}

// MarshalYAML implements yaml.Marshaler.
func (c Credential) MarshalYAML() (interface{}, error) {
	return credentialYAML{c.authType, c.attributes}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Credential) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var inner credentialYAML
	if err := unmarshal(&inner); err != nil {
		return errors.Trace(err)
	}
	if inner.AuthType == "" {
		return errors.NotValidf("credential without auth-type")
	}
	*c = NewCredential(inner.AuthType, inner.Attributes)
	return nil
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type credentialsSet struct {
	Credentials map[string]CloudCredential `yaml:"credentials"`
}

// ParseCredentials parses the contents of a credentials.yaml file.
// The returned map is keyed on cloud name.
func ParseCredentials(data []byte) (map[string]CloudCredential, error) {
	var content credentialsSet
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, errors.Annotate(err, "cannot unmarshal yaml credentials")
	}
	return content.Credentials, nil
}

// ReadCredentialsFile parses a credentials.yaml file at the given
// path. Missing file means no credentials.
func ReadCredentialsFile(file string) (map[string]CloudCredential, error) {
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ParseCredentials(data)
}

// WriteCredentialsFile writes a credentials.yaml file to the given
// path, replacing whatever was there.
func WriteCredentialsFile(file string, credentials map[string]CloudCredential) error {
	data, err := yaml.Marshal(credentialsSet{credentials})
	if err != nil {
		return errors.Annotate(err, "cannot marshal credentials")
	}
	releaser, err := acquireLock()
	if err != nil {
		return errors.Annotate(err, "cannot acquire lock to write credentials")
	}
	defer releaser.Release()
	return errors.Trace(os.WriteFile(file, data, 0600))
}

// CredentialAttr describes one attribute of a credential schema.
type CredentialAttr struct {
	// Description describes the attribute in prompts.
	Description string

	// Hidden is true for secrets, which must not be echoed or
	// logged.
	Hidden bool

	// FilePath is true when the attribute's value names a file whose
	// contents become the final value.
	FilePath bool

	// Optional is true when the attribute may be left unset.
	Optional bool

	// Options restricts the value to one of these, when non-empty.
	Options []interface{}
}

// NamedCredentialAttr is a schema attribute with its name.
type NamedCredentialAttr struct {
	Name string
	CredentialAttr
}

// CredentialSchema describes the attributes one auth type requires.
type CredentialSchema []NamedCredentialAttr

// CommonCredentialSchemas are the schemas for the auth types the
// acceptance suites exercise.
var CommonCredentialSchemas = map[AuthType]CredentialSchema{
	AccessKeyAuthType: {
		{"access-key", CredentialAttr{Description: "The access key"}},
		{"secret-key", CredentialAttr{Description: "The secret key", Hidden: true}},
	},
	UserPassAuthType: {
		{"username", CredentialAttr{Description: "The username"}},
		{"password", CredentialAttr{Description: "The password", Hidden: true}},
	},
	OAuth1AuthType: {
		{"maas-oauth", CredentialAttr{Description: "The API key", Hidden: true}},
	},
	JSONFileAuthType: {
		{"file", CredentialAttr{Description: "Path to the credential file", FilePath: true}},
	},
	EmptyAuthType: {},
}

// schemaChecker builds a strict checker for the schema's attributes:
// unknown attributes are rejected and mandatory ones enforced.
func (s CredentialSchema) schemaChecker() (schema.Checker, error) {
	fields := make(environschema.Fields, len(s))
	for _, field := range s {
		fields[field.Name] = environschema.Attr{
			Description: field.Description,
			Type:        environschema.Tstring,
			Group:       environschema.AccountGroup,
			Mandatory:   !field.Optional,
			Secret:      field.Hidden,
			Values:      field.Options,
		}
	}
	schemaFields, schemaDefaults, err := fields.ValidationSchema()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return schema.StrictFieldMap(schemaFields, schemaDefaults), nil
}

// Finalize validates attrs against the schema and returns the
// finalized attributes: mandatory attributes must be present, unknown
// ones are rejected, and file path attributes are replaced with the
// file contents read through readFile.
func (s CredentialSchema) Finalize(
	attrs map[string]string,
	readFile func(string) ([]byte, error),
) (map[string]string, error) {
	checker, err := s.schemaChecker()
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}
	result, err := checker.Coerce(m, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	coerced := result.(map[string]interface{})
	newAttrs := make(map[string]string, len(coerced))
	for _, field := range s {
		value, ok := coerced[field.Name].(string)
		if !ok {
			continue
		}
		if field.FilePath && value != "" {
			data, err := readFile(value)
			if err != nil {
				return nil, errors.Annotatef(err, "reading file for %q", field.Name)
			}
			value = string(data)
		}
		newAttrs[field.Name] = value
	}
	return newAttrs, nil
}

// FinalizeCredential validates credential against the schema for its
// auth type and returns a credential carrying the finalized
// attributes.
func FinalizeCredential(
	credential Credential,
	schemas map[AuthType]CredentialSchema,
	readFile func(string) ([]byte, error),
) (*Credential, error) {
	credentialSchema, ok := schemas[credential.authType]
	if !ok {
		return nil, errors.NotSupportedf("auth-type %q", credential.authType)
	}
	attrs, err := credentialSchema.Finalize(credential.attributes, readFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	finalized := NewCredential(credential.authType, attrs)
	finalized.Label = credential.Label
	return &finalized, nil
}

const redacted = "REDACTED"

// RedactedAttributes returns the credential's attributes with the
// values of hidden attributes masked, for logs and error messages.
// Attributes of an auth type without a schema are all masked.
func RedactedAttributes(credential Credential, schemas map[AuthType]CredentialSchema) map[string]string {
	credentialSchema, known := schemas[credential.authType]
	hidden := make(map[string]bool, len(credentialSchema))
	for _, field := range credentialSchema {
		hidden[field.Name] = field.Hidden
	}
	attrs := make(map[string]string, len(credential.attributes))
	for name, value := range credential.attributes {
		isHidden, declared := hidden[name]
		if !known || !declared || isHidden {
			value = redacted
		}
		attrs[name] = value
	}
	return attrs
}
