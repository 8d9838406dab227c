// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package osenv resolves the juju home directory and the environment
// variables the juju binary pays attention to. The driver library uses
// it both to locate files on the test host and to build the environment
// passed to juju subprocesses.
package osenv

import (
	"os"
	"strings"

	"github.com/juju/collections/set"
)

const (
	// JujuXDGDataHomeEnvKey holds the juju 2.x data directory.
	JujuXDGDataHomeEnvKey = "JUJU_DATA"

	// JujuHomeEnvKey holds the juju 1.x home directory.
	JujuHomeEnvKey = "JUJU_HOME"

	// JujuModelEnvKey selects the model operated on when no -m flag
	// is given.
	JujuModelEnvKey = "JUJU_MODEL"

	// JujuFeatureFlagEnvKey holds the comma separated set of
	// developer feature flags enabled for the juju binary.
	JujuFeatureFlagEnvKey = "JUJU_DEV_FEATURE_FLAGS"

	// JujuLoggingConfigEnvKey holds the logging config applied to
	// commands run by the driver.
	JujuLoggingConfigEnvKey = "JUJU_LOGGING_CONFIG"

	// JujuStartupLoggingConfigEnvKey holds the logging config applied
	// before command line parsing.
	JujuStartupLoggingConfigEnvKey = "JUJU_STARTUP_LOGGING_CONFIG"

	// XDGDataHome is the XDG base directory the juju data dir
	// defaults under.
	XDGDataHome = "XDG_DATA_HOME"
)

// FeatureFlags returns the feature flags enabled in the process
// environment.
func FeatureFlags() set.Strings {
	return ParseFeatureFlags(os.Getenv(JujuFeatureFlagEnvKey))
}

// ParseFeatureFlags parses a comma separated flag list of the form
// accepted by JUJU_DEV_FEATURE_FLAGS. Flags are lower-cased and
// trimmed; empty entries are dropped.
func ParseFeatureFlags(raw string) set.Strings {
	flags := set.NewStrings()
	for _, flag := range strings.Split(raw, ",") {
		flag = strings.ToLower(strings.TrimSpace(flag))
		if flag != "" {
			flags.Add(flag)
		}
	}
	return flags
}

// MergeFeatureFlags combines flag sets into the canonical environment
// value: sorted, comma separated.
func MergeFeatureFlags(flags ...set.Strings) string {
	merged := set.NewStrings()
	for _, fs := range flags {
		merged = merged.Union(fs)
	}
	return strings.Join(merged.SortedValues(), ",")
}
