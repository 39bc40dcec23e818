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
	"log"
	"sync"
	"time"
)

const (
	sinkQueueLen = 256
	sinkTimeout  = 5 * time.Second
)

// Sink receives every transition recorded by any watch.  Sinks are called
// from a single goroutine, in order, never while a watch is locked.
type Sink interface {
	Send(ctx context.Context, t Transition) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, t Transition) error

func (f SinkFunc) Send(ctx context.Context, t Transition) error {
	return f(ctx, t)
}

// sinkQueue delivers transitions to sinks asynchronously.  If the sinks
// fall behind, transitions are dropped rather than stalling supervision.
type sinkQueue struct {
	sinks   []Sink
	ch      chan Transition
	done    chan struct{}
	logger  *log.Logger
	dropped int
	mx      sync.Mutex
}

func newSinkQueue(logger *log.Logger) *sinkQueue {
	return &sinkQueue{logger: logger}
}

func (q *sinkQueue) add(s Sink) {
	q.mx.Lock()
	defer q.mx.Unlock()
	q.sinks = append(q.sinks, s)
	if q.ch == nil {
		q.ch = make(chan Transition, sinkQueueLen)
		q.done = make(chan struct{})
		go q.run(q.ch, q.done)
	}
}

func (q *sinkQueue) push(t Transition) {
	q.mx.Lock()
	defer q.mx.Unlock()
	if q.ch == nil {
		return
	}
	select {
	case q.ch <- t:
	default:
		q.dropped++
		if q.dropped == 1 || q.dropped%100 == 0 {
			q.logger.Printf("Transition sinks falling behind; %d dropped", q.dropped)
		}
	}
}

func (q *sinkQueue) snapshot() []Sink {
	q.mx.Lock()
	defer q.mx.Unlock()
	return append([]Sink{}, q.sinks...)
}

func (q *sinkQueue) run(ch chan Transition, done chan struct{}) {
	defer close(done)
	for t := range ch {
		for _, s := range q.snapshot() {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := s.Send(ctx, t); err != nil {
				q.logger.Printf("Transition sink failed: %v", err)
			}
			cancel()
		}
	}
}

// close flushes queued transitions and stops delivery.
func (q *sinkQueue) close() {
	q.mx.Lock()
	ch, done := q.ch, q.done
	q.ch = nil
	q.mx.Unlock()
	if ch != nil {
		close(ch)
		<-done
	}
}
