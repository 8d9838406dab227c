// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package osenv_test

import (
	"path/filepath"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/jujutest/osenv"
)

type homeSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&homeSuite{})

func (s *homeSuite) TearDownTest(c *gc.C) {
	osenv.SetJujuXDGDataHome("")
	s.IsolationSuite.TearDownTest(c)
}

func (s *homeSuite) TestStandardHome(c *gc.C) {
	testJujuXDGDataHome := c.MkDir()
	osenv.SetJujuXDGDataHome(testJujuXDGDataHome)
	c.Assert(osenv.JujuXDGDataHome(), gc.Equals, testJujuXDGDataHome)
	c.Assert(osenv.JujuXDGDataHomeDir(), gc.Equals, testJujuXDGDataHome)
}

func (s *homeSuite) TestSetReturnsOld(c *gc.C) {
	old := osenv.SetJujuXDGDataHome("first")
	c.Assert(old, gc.Equals, "")
	old = osenv.SetJujuXDGDataHome("second")
	c.Assert(old, gc.Equals, "first")
	c.Assert(osenv.IsJujuXDGDataHomeSet(), jc.IsTrue)
}

func (s *homeSuite) TestHomeFromEnvironment(c *gc.C) {
	osenv.SetJujuXDGDataHome("")
	s.PatchEnvironment(osenv.JujuXDGDataHomeEnvKey, "/tmp/juju-data")
	c.Assert(osenv.JujuXDGDataHomeDir(), gc.Equals, "/tmp/juju-data")
}

func (s *homeSuite) TestHomeFromXDGDataHome(c *gc.C) {
	osenv.SetJujuXDGDataHome("")
	s.PatchEnvironment(osenv.JujuXDGDataHomeEnvKey, "")
	s.PatchEnvironment(osenv.XDGDataHome, "/home/fred/.local/share")
	c.Assert(osenv.JujuXDGDataHomeDir(), gc.Equals,
		filepath.Join("/home/fred/.local/share", "juju"))
}

func (s *homeSuite) TestHomePath(c *gc.C) {
	testJujuHome := c.MkDir()
	osenv.SetJujuXDGDataHome(testJujuHome)
	envPath := osenv.JujuXDGDataHomePath("clouds.yaml")
	c.Assert(envPath, gc.Equals, filepath.Join(testJujuHome, "clouds.yaml"))
}

func (s *homeSuite) TestLegacyJujuHome(c *gc.C) {
	s.PatchEnvironment(osenv.JujuHomeEnvKey, "/tmp/legacy-juju")
	c.Assert(osenv.JujuHomeDir(), gc.Equals, "/tmp/legacy-juju")
}
