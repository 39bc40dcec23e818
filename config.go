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
	"strings"
	"time"
)

const (
	DefaultInterval      = 5 * time.Second
	DefaultStopTimeout   = 10 * time.Second
	DefaultMaxRestarts   = 5
	DefaultRestartWindow = 5 * time.Minute
)

// WatchConfig is the mutable description of a watch.  Registry.Watch hands
// a fresh one, holding defaults, to a configuration function and validates
// it once the function returns.
type WatchConfig struct {
	Name    string
	Group   string
	Start   string // shell command; required
	Stop    string // optional; default signals the process group
	Restart string // optional; default is Stop then Start

	Dir     string
	Env     []string
	PidFile string // set when Start daemonizes and writes its own PID file

	// Autostart controls whether loading the watch monitors it.
	Autostart bool

	// Interval is the default poll interval for conditions.
	Interval time.Duration

	// StopTimeout bounds how long Stop waits before SIGKILL.
	StopTimeout time.Duration

	// MaxRestarts automatic starts are allowed within RestartWindow
	// before the watch is given up on.
	MaxRestarts   int
	RestartWindow time.Duration

	// Lifecycle attaches a process_exits condition to the start trigger,
	// so that an unexpected exit starts the process again.
	Lifecycle bool

	Conditions map[Trigger][]Condition
}

// On attaches conditions to a trigger.  All poll conditions for a trigger
// must hold together; any event condition fires on its own.
func (c *WatchConfig) On(t Trigger, conds ...Condition) {
	if c.Conditions == nil {
		c.Conditions = make(map[Trigger][]Condition)
	}
	c.Conditions[t] = append(c.Conditions[t], conds...)
}

// StartIf attaches conditions that start the process again from up.
func (c *WatchConfig) StartIf(conds ...Condition) { c.On(TriggerStart, conds...) }

// RestartIf attaches conditions that restart the process from up.
func (c *WatchConfig) RestartIf(conds ...Condition) { c.On(TriggerRestart, conds...) }

// StopIf attaches conditions that stop the process from up.
func (c *WatchConfig) StopIf(conds ...Condition) { c.On(TriggerStop, conds...) }

// UpIf attaches conditions that confirm a start or restart.
func (c *WatchConfig) UpIf(conds ...Condition) { c.On(TriggerUp, conds...) }

func newWatchConfig() *WatchConfig {
	return &WatchConfig{
		Autostart:     true,
		Lifecycle:     true,
		Interval:      DefaultInterval,
		StopTimeout:   DefaultStopTimeout,
		MaxRestarts:   DefaultMaxRestarts,
		RestartWindow: DefaultRestartWindow,
	}
}

// validate checks required fields and normalizes the rest.
func (c *WatchConfig) validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Group = strings.TrimSpace(c.Group)
	if c.Name == "" {
		return &ConfigError{Err: ErrMissingName}
	}
	if strings.TrimSpace(c.Start) == "" {
		return &ConfigError{Name: c.Name, Err: ErrMissingStart}
	}
	if c.Group == c.Name {
		return &ConfigError{Name: c.Name, Err: ErrNameConflict}
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.RestartWindow <= 0 {
		c.RestartWindow = DefaultRestartWindow
	}
	for t := range c.Conditions {
		if _, err := ParseTrigger(string(t)); err != nil {
			return &ConfigError{Name: c.Name, Err: err}
		}
	}
	if c.Lifecycle {
		c.On(TriggerStart, &ProcessExits{})
	}
	return nil
}
