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

// Package warden supervises operating system processes.  It starts,
// stops and restarts them, and keeps watching them, acting on declared
// conditions rather than on manual intervention.
//
// Each supervised process is a Watch, declared with Registry.Watch by
// filling in a WatchConfig.  Watches may be collected into named groups,
// which are the targets of bulk commands.  A Watch moves between the
// states unset, start, up, restart, stop and unmonitored; the moves are
// driven by control verbs (Registry.Control), by poll conditions that a
// Timer evaluates periodically, and by event conditions such as a process
// exiting, which are delivered through an EventHandler.
//
// A Registry is an ordinary value.  A daemon normally owns exactly one,
// hands it to its control surface and declaration loader, and then calls
// Start, which blocks for the life of the process.
//
// The packages below this one provide a Lua declaration loader (script),
// daemon settings (settings), transition history sinks (history), and an
// HTTP control surface with its client (rest).
package warden
