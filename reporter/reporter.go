// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reporter renders wait-loop progress for humans. Repeated
// identical groups collapse into ticks so a stalled model reads as a
// line of dots rather than pages of identical status lines.
package reporter

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/juju/jujutest/wait"
)

// GroupReporter writes the states entities are grouped into while a
// wait loop polls. Nothing is written until a group with something
// other than the expected state arrives. A group identical to the
// previous one prints a tick, wrapped at wrapWidth columns; a changed
// group prints one line of `state: a, b | state: c` with the states
// sorted and the expected state elided.
type GroupReporter struct {
	out      io.Writer
	expected string

	last       map[string][]string
	printed    bool
	ticks      int
	wrapOffset int
	wrapWidth  int
}

// NewGroupReporter returns a reporter writing to out. Entities in the
// expected state are not reported; pass an empty string to report
// every state.
func NewGroupReporter(out io.Writer, expected string) *GroupReporter {
	return &GroupReporter{
		out:       out,
		expected:  expected,
		wrapWidth: 79,
	}
}

// Update reports the current group. Part of wait.Reporter.
func (r *GroupReporter) Update(group map[string][]string) {
	if r.last != nil && reflect.DeepEqual(group, r.last) {
		if !r.printed {
			return
		}
		if (r.wrapOffset+r.ticks)%r.wrapWidth == 0 {
			fmt.Fprint(r.out, "\n")
		}
		if r.ticks > 0 || r.wrapOffset == 0 {
			fmt.Fprint(r.out, ".")
		} else {
			fmt.Fprint(r.out, " .")
		}
		r.ticks++
		return
	}

	states := make([]string, 0, len(group))
	for state := range group {
		states = append(states, state)
	}
	sort.Strings(states)
	var parts []string
	for _, state := range states {
		if state == r.expected {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", state, strings.Join(group[state], ", ")))
	}
	line := strings.Join(parts, " | ")

	r.last = group
	r.ticks = 0
	if line == "" {
		r.wrapOffset = 0
		return
	}
	leadLength := len(line) + 1
	if r.printed {
		line = "\n" + line
	}
	fmt.Fprint(r.out, line)
	r.printed = true
	if leadLength < r.wrapWidth {
		r.wrapOffset = leadLength
	} else {
		r.wrapOffset = 0
	}
}

// UpdateFromReasons reports the blocking reasons a condition
// returned, grouped by state.
func (r *GroupReporter) UpdateFromReasons(reasons []wait.BlockingReason) {
	r.Update(wait.GroupByState(reasons))
}

// Finish terminates the progress line. Part of wait.Reporter. It
// writes nothing if Update never printed.
func (r *GroupReporter) Finish() {
	if r.printed {
		fmt.Fprint(r.out, "\n")
	}
}
