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
	"context"
	"sync"
	"time"
)

// DefaultTick is the granularity of the Timer.  Conditions with shorter
// intervals are effectively evaluated once per tick.
const DefaultTick = time.Second

// Timer drives polling.  Each tick it asks every watch to evaluate the
// poll conditions that are due; the request is handed off, so a slow
// watch never delays the others.
type Timer struct {
	tick    time.Duration
	watches func() []*Watch
	stop    chan struct{}
	once    sync.Once
}

// NewTimer returns a timer over the watches returned by watches.
func NewTimer(tick time.Duration, watches func() []*Watch) *Timer {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Timer{
		tick:    tick,
		watches: watches,
		stop:    make(chan struct{}),
	}
}

// Run ticks until ctx is done or Stop is called.  It returns ctx.Err()
// in the former case and nil in the latter.
func (t *Timer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.stop:
			return nil
		case <-ticker.C:
			for _, w := range t.watches() {
				w.requestPoll()
			}
		}
	}
}

// Stop makes Run return.
func (t *Timer) Stop() {
	t.once.Do(func() { close(t.stop) })
}
