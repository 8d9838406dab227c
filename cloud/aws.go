// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cloud

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/utils/v3"
	"gopkg.in/ini.v1"
)

const (
	accessKeyCredAttr = "access-key"
	secretKeyCredAttr = "secret-key"
)

// DetectAWSCredentials finds the credentials the juju binary itself
// would offer to autoload for AWS: profiles from the shared
// ~/.aws/credentials INI file, then the standard environment
// variables, which take precedence for the "default" name. Returns
// NotFound when neither yields a usable pair.
func DetectAWSCredentials() (*CloudCredential, error) {
	result := CloudCredential{
		AuthCredentials: make(map[string]Credential),
	}
	credsFile := filepath.Join(utils.Home(), ".aws", "credentials")
	if override := os.Getenv("AWS_SHARED_CREDENTIALS_FILE"); override != "" {
		credsFile = override
	}
	credInfo, err := ini.LooseLoad(credsFile)
	if err != nil {
		return nil, errors.Annotate(err, "loading AWS credentials file")
	}
	credInfo.DeleteSection(ini.DefaultSection)
	for _, sectionName := range credInfo.SectionStrings() {
		section, err := credInfo.GetSection(sectionName)
		if err != nil {
			continue
		}
		accessKey := section.Key("aws_access_key_id").Value()
		secretKey := section.Key("aws_secret_access_key").Value()
		if accessKey == "" || secretKey == "" {
			continue
		}
		credential := NewCredential(AccessKeyAuthType, map[string]string{
			accessKeyCredAttr: accessKey,
			secretKeyCredAttr: secretKey,
		})
		credential.Label = fmt.Sprintf("aws credential %q", sectionName)
		result.AuthCredentials[sectionName] = credential
	}

	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey != "" && secretKey != "" {
		credential := NewCredential(AccessKeyAuthType, map[string]string{
			accessKeyCredAttr: accessKey,
			secretKeyCredAttr: secretKey,
		})
		credential.Label = "aws credential from environment"
		result.AuthCredentials["default"] = credential
	}

	if len(result.AuthCredentials) == 0 {
		return nil, errors.NotFoundf("AWS credentials")
	}
	if region := os.Getenv("AWS_DEFAULT_REGION"); region != "" {
		result.DefaultRegion = region
	}
	return &result, nil
}
