// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend

import (
	"sync"

	"github.com/juju/jujutest/wait"
)

// Timings collects the CommandTime record of every invocation made
// through the backends that share it. Clones of a backend share one
// Timings so a whole test run can be reported together.
type Timings struct {
	mu      sync.Mutex
	records []*wait.CommandTime
}

// NewTimings returns an empty Timings.
func NewTimings() *Timings {
	return &Timings{}
}

// Add appends a record.
func (t *Timings) Add(record *wait.CommandTime) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, record)
}

// All returns the records in the order they were added.
func (t *Timings) All() []*wait.CommandTime {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := make([]*wait.CommandTime, len(t.records))
	copy(records, t.records)
	return records
}

// Len returns the number of records.
func (t *Timings) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
