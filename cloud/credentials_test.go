// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cloud_test

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/jujutest/cloud"
)

type credentialsSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&credentialsSuite{})

var credentialsYAML = `
credentials:
  aws:
    default-credential: peter
    default-region: us-east-2
    paul:
      auth-type: access-key
      access-key: paul-key
      secret-key: paul-secret
    peter:
      auth-type: access-key
      access-key: key
      secret-key: secret
  aws-gov:
    fbi:
      auth-type: access-key
      access-key: key
      secret-key: secret
`[1:]

func (s *credentialsSuite) TestParseCredentials(c *gc.C) {
	credentials, err := cloud.ParseCredentials([]byte(credentialsYAML))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(credentials, jc.DeepEquals, map[string]cloud.CloudCredential{
		"aws": {
			DefaultCredential: "peter",
			DefaultRegion:     "us-east-2",
			AuthCredentials: map[string]cloud.Credential{
				"paul": cloud.NewCredential(cloud.AccessKeyAuthType, map[string]string{
					"access-key": "paul-key",
					"secret-key": "paul-secret",
				}),
				"peter": cloud.NewCredential(cloud.AccessKeyAuthType, map[string]string{
					"access-key": "key",
					"secret-key": "secret",
				}),
			},
		},
		"aws-gov": {
			AuthCredentials: map[string]cloud.Credential{
				"fbi": cloud.NewCredential(cloud.AccessKeyAuthType, map[string]string{
					"access-key": "key",
					"secret-key": "secret",
				}),
			},
		},
	})
}

func (s *credentialsSuite) TestParseCredentialsMissingAuthType(c *gc.C) {
	_, err := cloud.ParseCredentials([]byte(`
credentials:
  aws:
    peter:
      access-key: key
`[1:]))
	c.Assert(err, gc.ErrorMatches, "cannot unmarshal yaml credentials: credential without auth-type not valid")
}

func (s *credentialsSuite) TestCredentialsRoundTrip(c *gc.C) {
	credentials := map[string]cloud.CloudCredential{
		"google": {
			DefaultCredential: "bob",
			AuthCredentials: map[string]cloud.Credential{
				"bob": cloud.NewCredential(cloud.OAuth2AuthType, map[string]string{
					"client-id": "1234",
				}),
			},
		},
	}
	file := filepath.Join(c.MkDir(), "credentials.yaml")
	err := cloud.WriteCredentialsFile(file, credentials)
	c.Assert(err, jc.ErrorIsNil)
	read, err := cloud.ReadCredentialsFile(file)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(read, jc.DeepEquals, credentials)
}

func (s *credentialsSuite) TestReadCredentialsFileMissing(c *gc.C) {
	credentials, err := cloud.ReadCredentialsFile(filepath.Join(c.MkDir(), "nope.yaml"))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(credentials, gc.IsNil)
}

func (s *credentialsSuite) TestWriteCredentialsFileFormat(c *gc.C) {
	credentials := map[string]cloud.CloudCredential{
		"aws": {
			DefaultRegion: "us-east-1",
			AuthCredentials: map[string]cloud.Credential{
				"peter": cloud.NewCredential(cloud.AccessKeyAuthType, map[string]string{
					"access-key": "key",
					"secret-key": "secret",
				}),
			},
		},
	}
	file := filepath.Join(c.MkDir(), "credentials.yaml")
	err := cloud.WriteCredentialsFile(file, credentials)
	c.Assert(err, jc.ErrorIsNil)
	data, err := os.ReadFile(file)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, `
credentials:
  aws:
    default-region: us-east-1
    peter:
      auth-type: access-key
      access-key: key
      secret-key: secret
`[1:])
}

func (s *credentialsSuite) TestFinalizeCredential(c *gc.C) {
	credential := cloud.NewCredential(cloud.AccessKeyAuthType, map[string]string{
		"access-key": "key",
		"secret-key": "secret",
	})
	finalized, err := cloud.FinalizeCredential(credential, cloud.CommonCredentialSchemas, nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(finalized.Attributes(), jc.DeepEquals, map[string]string{
		"access-key": "key",
		"secret-key": "secret",
	})
}

func (s *credentialsSuite) TestFinalizeCredentialMissingMandatory(c *gc.C) {
	credential := cloud.NewCredential(cloud.AccessKeyAuthType, map[string]string{
		"access-key": "key",
	})
	_, err := cloud.FinalizeCredential(credential, cloud.CommonCredentialSchemas, nil)
	c.Assert(err, gc.ErrorMatches, ".*secret-key.*")
}

func (s *credentialsSuite) TestFinalizeCredentialUnknownAttr(c *gc.C) {
	credential := cloud.NewCredential(cloud.AccessKeyAuthType, map[string]string{
		"access-key": "key",
		"secret-key": "secret",
		"extra":      "surprise",
	})
	_, err := cloud.FinalizeCredential(credential, cloud.CommonCredentialSchemas, nil)
	c.Assert(err, gc.ErrorMatches, `.*unknown key "extra".*`)
}

func (s *credentialsSuite) TestFinalizeCredentialUnsupportedAuthType(c *gc.C) {
	credential := cloud.NewCredential(cloud.CertificateAuthType, nil)
	_, err := cloud.FinalizeCredential(credential, cloud.CommonCredentialSchemas, nil)
	c.Assert(err, jc.Satisfies, errors.IsNotSupported)
	c.Assert(err, gc.ErrorMatches, `auth-type "certificate" not supported`)
}

func (s *credentialsSuite) TestFinalizeCredentialResolvesFiles(c *gc.C) {
	path := filepath.Join(c.MkDir(), "creds.json")
	err := os.WriteFile(path, []byte(`{"project": "x"}`), 0600)
	c.Assert(err, jc.ErrorIsNil)
	credential := cloud.NewCredential(cloud.JSONFileAuthType, map[string]string{
		"file": path,
	})
	finalized, err := cloud.FinalizeCredential(credential, cloud.CommonCredentialSchemas, os.ReadFile)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(finalized.Attributes(), jc.DeepEquals, map[string]string{
		"file": `{"project": "x"}`,
	})
}

func (s *credentialsSuite) TestRedactedAttributes(c *gc.C) {
	credential := cloud.NewCredential(cloud.AccessKeyAuthType, map[string]string{
		"access-key": "key",
		"secret-key": "secret",
		"stray":      "value",
	})
	attrs := cloud.RedactedAttributes(credential, cloud.CommonCredentialSchemas)
	c.Assert(attrs, jc.DeepEquals, map[string]string{
		"access-key": "key",
		"secret-key": "REDACTED",
		"stray":      "REDACTED",
	})
}

func (s *credentialsSuite) TestRedactedAttributesUnknownAuthType(c *gc.C) {
	credential := cloud.NewCredential(cloud.CertificateAuthType, map[string]string{
		"cert": "pem",
	})
	attrs := cloud.RedactedAttributes(credential, cloud.CommonCredentialSchemas)
	c.Assert(attrs, jc.DeepEquals, map[string]string{"cert": "REDACTED"})
}

type awsSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&awsSuite{})

func (s *awsSuite) TestDetectAWSCredentialsFromFile(c *gc.C) {
	path := filepath.Join(c.MkDir(), "credentials")
	err := os.WriteFile(path, []byte(`
[fred]
aws_access_key_id = fred-key
aws_secret_access_key = fred-secret

[incomplete]
aws_access_key_id = lonely-key
`[1:]), 0600)
	c.Assert(err, jc.ErrorIsNil)
	s.PatchEnvironment("AWS_SHARED_CREDENTIALS_FILE", path)

	detected, err := cloud.DetectAWSCredentials()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(detected.AuthCredentials, gc.HasLen, 1)
	credential := detected.AuthCredentials["fred"]
	c.Check(credential.AuthType(), gc.Equals, cloud.AccessKeyAuthType)
	c.Check(credential.Attributes(), jc.DeepEquals, map[string]string{
		"access-key": "fred-key",
		"secret-key": "fred-secret",
	})
	c.Check(credential.Label, gc.Equals, `aws credential "fred"`)
}

func (s *awsSuite) TestDetectAWSCredentialsFromEnv(c *gc.C) {
	s.PatchEnvironment("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(c.MkDir(), "nope"))
	s.PatchEnvironment("AWS_ACCESS_KEY_ID", "env-key")
	s.PatchEnvironment("AWS_SECRET_ACCESS_KEY", "env-secret")
	s.PatchEnvironment("AWS_DEFAULT_REGION", "eu-west-1")

	detected, err := cloud.DetectAWSCredentials()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(detected.DefaultRegion, gc.Equals, "eu-west-1")
	credential := detected.AuthCredentials["default"]
	c.Check(credential.Attributes(), jc.DeepEquals, map[string]string{
		"access-key": "env-key",
		"secret-key": "env-secret",
	})
}

func (s *awsSuite) TestDetectAWSCredentialsEnvBeatsFile(c *gc.C) {
	path := filepath.Join(c.MkDir(), "credentials")
	err := os.WriteFile(path, []byte(`
[default]
aws_access_key_id = file-key
aws_secret_access_key = file-secret
`[1:]), 0600)
	c.Assert(err, jc.ErrorIsNil)
	s.PatchEnvironment("AWS_SHARED_CREDENTIALS_FILE", path)
	s.PatchEnvironment("AWS_ACCESS_KEY_ID", "env-key")
	s.PatchEnvironment("AWS_SECRET_ACCESS_KEY", "env-secret")

	detected, err := cloud.DetectAWSCredentials()
	c.Assert(err, jc.ErrorIsNil)
	credential := detected.AuthCredentials["default"]
	c.Check(credential.Attributes()["access-key"], gc.Equals, "env-key")
}

func (s *awsSuite) TestDetectAWSCredentialsNone(c *gc.C) {
	s.PatchEnvironment("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(c.MkDir(), "nope"))
	_, err := cloud.DetectAWSCredentials()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}
