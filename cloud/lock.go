// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cloud

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/mutex/v2"
)

// lockName is shared with the juju binary's own client store so that
// concurrent writers of the home directory serialise with each other.
const lockName = "store-lock"

// lockTimeout assumes a holder that has not released within this time
// has crashed.
const lockTimeout = 30 * time.Second

func acquireLock() (mutex.Releaser, error) {
	spec := mutex.Spec{
		Name:    lockName,
		Clock:   clock.WallClock,
		Delay:   20 * time.Millisecond,
		Timeout: lockTimeout,
	}
	releaser, err := mutex.Acquire(spec)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return releaser, nil
}
