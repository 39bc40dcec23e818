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
	"errors"
	"fmt"
)

var (
	ErrMissingName     = errors.New("Watch must have a name")
	ErrMissingStart    = errors.New("Watch must have a start command")
	ErrDuplicateName   = errors.New("Duplicate watch name")
	ErrNameConflict    = errors.New("Watch name conflicts with a group name")
	ErrInitAfterWatch  = errors.New("Init must be called before any watch is declared")
	ErrRunning         = errors.New("Supervision engine already running")
	ErrNoLoader        = errors.New("No declaration loader configured")
	ErrNotRunning      = errors.New("Process is not running")
	ErrAlreadyRunning  = errors.New("Process is already running")
	ErrCrashLoop       = errors.New("Restarting too quickly")
	ErrPidDirectory    = errors.New("PID file directory unusable")
	ErrBadParam        = errors.New("Bad condition parameter")
	ErrUnknownKind     = errors.New("Unknown condition kind")
	ErrUnknownTrigger  = errors.New("Unknown transition trigger")
	ErrNoPid           = errors.New("No PID recorded")
	ErrRemoved         = errors.New("Watch has been removed")
	ErrCommandTimedOut = errors.New("Command timed out")
	ErrNoMatch         = errors.New("No files matched")
)

// UnknownWatchError is returned by Control when the target names neither
// a watch nor a group.
type UnknownWatchError struct {
	Name string
}

func (e *UnknownWatchError) Error() string {
	return fmt.Sprintf("No such watch or group: %s", e.Name)
}

// InvalidCommandError is returned by Control for an unrecognized verb.
type InvalidCommandError struct {
	Command string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("Invalid command: %s", e.Command)
}

// ConfigError reports a rejected watch declaration.  At bootstrap these
// abort the whole load.
type ConfigError struct {
	Name string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Name == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
