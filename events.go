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
	"sync"
)

// EventHandler carries asynchronous Events from controllers and event
// conditions to the owning watch.  Posting never blocks; events queue
// until the handler is started, and are then routed by watch name into
// the watch's own queue, to be applied under the watch's lock.
type EventHandler struct {
	route   func(name string) *Watch
	queue   []Event
	wake    chan struct{}
	quit    chan struct{}
	started bool
	mx      sync.Mutex
}

// NewEventHandler returns a handler that resolves names with route.
func NewEventHandler(route func(name string) *Watch) *EventHandler {
	return &EventHandler{
		route: route,
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
	}
}

// Post queues an event.
func (h *EventHandler) Post(ev Event) {
	h.mx.Lock()
	h.queue = append(h.queue, ev)
	h.mx.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Start begins delivery.  Starting twice is harmless.
func (h *EventHandler) Start() {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.started {
		return
	}
	h.started = true
	go h.run()
}

// Stop ends delivery.  Undelivered events are discarded.
func (h *EventHandler) Stop() {
	h.mx.Lock()
	defer h.mx.Unlock()
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
}

func (h *EventHandler) run() {
	for {
		select {
		case <-h.quit:
			return
		case <-h.wake:
		}
		h.mx.Lock()
		q := h.queue
		h.queue = nil
		h.mx.Unlock()

		for _, ev := range q {
			if w := h.route(ev.Watch); w != nil {
				w.deliver(ev)
			}
		}
	}
}
