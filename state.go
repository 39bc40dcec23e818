// Copyright 2026 The Warden Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package warden

import (
	"time"
)

// State is the lifecycle state of a Watch.  The zero value is StateUnset,
// meaning the watch has never been monitored.
type State string

const (
	StateUnset       State = ""
	StateStart       State = "start"
	StateUp          State = "up"
	StateRestart     State = "restart"
	StateStop        State = "stop"
	StateUnmonitored State = "unmonitored"
)

// String renders the state for status output.  Unset renders as
// "unmonitored".
func (s State) String() string {
	if s == StateUnset {
		return string(StateUnmonitored)
	}
	return string(s)
}

// Monitored reports whether the state is one that is polled and evented.
func (s State) Monitored() bool {
	switch s {
	case StateStart, StateUp, StateRestart, StateStop:
		return true
	}
	return false
}

// Trigger names a set of conditions.  A trigger is named for the state it
// leads to.
type Trigger string

const (
	TriggerUp      Trigger = "up"      // checked in start and restart
	TriggerStart   Trigger = "start"   // checked in up
	TriggerRestart Trigger = "restart" // checked in up
	TriggerStop    Trigger = "stop"    // checked in up
)

// Triggers lists every trigger, in the order they are evaluated.
var Triggers = []Trigger{TriggerUp, TriggerStop, TriggerRestart, TriggerStart}

// ParseTrigger validates a trigger name.
func ParseTrigger(s string) (Trigger, error) {
	for _, t := range Triggers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", ErrUnknownTrigger
}

// Target returns the state the trigger moves a watch into.
func (t Trigger) Target() State {
	return State(t)
}

// ActiveIn reports whether conditions for the trigger are evaluated while
// a watch is in state s.
func (t Trigger) ActiveIn(s State) bool {
	switch t {
	case TriggerUp:
		return s == StateStart || s == StateRestart
	case TriggerStart, TriggerRestart, TriggerStop:
		return s == StateUp
	}
	return false
}

// Action is a process-level operation.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// Transition records a single state change of a watch.
type Transition struct {
	ID     string    `json:"id"`
	Watch  string    `json:"watch"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
	Fatal  bool      `json:"fatal,omitempty"`
	Time   time.Time `json:"time"`
}
