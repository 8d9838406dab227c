// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"os"
	"path/filepath"

	jujutesting "github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/jujutest/osenv"
)

// FakeHomeSuite isolates a test from the user's juju home. Each test
// gets a fresh empty JUJU_DATA, both in the environment and in the
// osenv cache, restored on teardown.
type FakeHomeSuite struct {
	jujutesting.IsolationSuite

	// Home is the juju home for the running test.
	Home string
}

func (s *FakeHomeSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.Home = c.MkDir()
	s.PatchEnvironment(osenv.JujuXDGDataHomeEnvKey, s.Home)
	old := osenv.SetJujuXDGDataHome(s.Home)
	s.AddCleanup(func(*gc.C) { osenv.SetJujuXDGDataHome(old) })
}

// WriteFile writes a file into the fake juju home and returns its
// path.
func (s *FakeHomeSuite) WriteFile(c *gc.C, name, contents string) string {
	path := filepath.Join(s.Home, name)
	err := os.WriteFile(path, []byte(contents), 0600)
	c.Assert(err, jc.ErrorIsNil)
	return path
}
