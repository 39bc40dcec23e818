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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/warden"
)

// Status is the one-word summary shown for a watch.
func Status(w *warden.WatchInfo) string {
	if w.Failed {
		return "failed"
	}
	return w.State
}

// Monitored reports whether the watch is under supervision.
func Monitored(w *warden.WatchInfo) bool {
	return w.State != warden.StateUnmonitored.String()
}

// Up reports whether the watch reached its running state.
func Up(w *warden.WatchInfo) bool {
	return w.State == string(warden.StateUp)
}

func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// Since is the time spent in the current state, in whole seconds.
func Since(w *warden.WatchInfo) time.Duration {
	d := time.Since(w.Stamp)
	return d - d%time.Second
}

type sorted []*warden.WatchInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	if a.Failed != b.Failed {
		// put failed items at front
		return a.Failed
	}
	if Monitored(a) != Monitored(b) {
		return Monitored(a)
	}
	if a.Group != b.Group {
		return a.Group < b.Group
	}
	return a.Name < b.Name
}

// SortWatches puts failed watches first, then monitored ones, then the
// rest, each by group and name.
func SortWatches(items []*warden.WatchInfo) {
	sort.Sort(sorted(items))
}
