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
	"log"
	"syscall"
	"time"
)

// Controller is the only thing that touches the operating system on behalf
// of a watch.  The watch serializes all calls, so implementations need not
// worry about concurrent use, except for Alive and Pid which may be called
// by conditions while the watch is locked by the same goroutine.
type Controller interface {
	// Start issues the start command and records the resulting PID.
	// It returns once the process has been spawned, not once it is
	// healthy.
	Start() error

	// Stop issues the stop command (or signals the process), and waits
	// a bounded time for the process to go away, escalating to SIGKILL.
	Stop() error

	// Restart issues the restart command, or Stop followed by Start.
	Restart() error

	// Signal delivers sig to the process.
	Signal(sig syscall.Signal) error

	// Alive reports whether the recorded PID refers to a live process.
	Alive() bool

	// Pid returns the recorded PID, or 0.
	Pid() int

	// Unregister releases anything held for the watch.  The process
	// itself is left alone.
	Unregister()
}

// EventKind classifies Events delivered outside the polling cycle.
type EventKind int

const (
	EventProcessExit EventKind = iota
	EventFileChange
	EventCustom
)

func (k EventKind) String() string {
	switch k {
	case EventProcessExit:
		return "process-exit"
	case EventFileChange:
		return "file-change"
	}
	return "custom"
}

// Event is an asynchronous notification addressed to one watch.
type Event struct {
	Watch    string
	Kind     EventKind
	Pid      int
	Path     string
	Expected bool // exit caused by our own stop/restart
	Err      error
	Time     time.Time
}

// ControllerEnv is what the registry hands a ControllerFactory.
type ControllerEnv struct {
	PidDir string
	Post   func(Event)
	Logger *log.Logger
}

// ControllerFactory builds a Controller for a newly declared watch.
type ControllerFactory func(cfg *WatchConfig, env ControllerEnv) Controller
