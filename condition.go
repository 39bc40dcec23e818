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
	"fmt"
	"sort"
	"sync"
	"time"
)

// Target is what a condition may inspect about the watch it belongs to.
type Target interface {
	Name() string
	Pid() int
	Alive() bool
}

// Condition is a predicate governing a transition.  Every condition is
// either a PollCondition or an EventCondition.
type Condition interface {
	Kind() string
}

// PollCondition is evaluated by the timer.  Conditions may keep state
// between calls (for example a rolling window of samples); that state
// belongs to the condition.
type PollCondition interface {
	Condition

	// Interval is how often the condition wants to be tested.  Zero
	// means the watch's default interval.
	Interval() time.Duration

	// Test evaluates the predicate.
	Test(t Target) bool
}

// EventCondition fires asynchronously.  While the watch is in a state
// where the trigger applies, the condition is armed; Arm may start
// whatever OS notification is needed and deliver it through post.  The
// watch later asks Matches about each Event it receives.
type EventCondition interface {
	Condition
	Arm(t Target, post func(Event)) error
	Disarm()
	Matches(ev Event) bool
}

// Params carries the arguments for a condition kind, typically converted
// from a script table.
type Params map[string]interface{}

func (p Params) has(key string) bool {
	_, ok := p[key]
	return ok
}

// Text returns a string parameter.
func (p Params) Text(key string, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %s must be a string", ErrBadParam, key)
}

// Float returns a numeric parameter.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: %s must be a number", ErrBadParam, key)
}

// Int returns an integer parameter.
func (p Params) Int(key string, def int) (int, error) {
	f, err := p.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// Bool returns a boolean parameter.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("%w: %s must be a boolean", ErrBadParam, key)
}

// Duration accepts a number of seconds or a Go duration string.
func (p Params) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		pd, err := time.ParseDuration(d)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrBadParam, key, err)
		}
		return pd, nil
	}
	f, err := p.Float(key, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be seconds or a duration", ErrBadParam, key)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// Times reads a {n, m} pair, or a single n meaning {n, n}.
func (p Params) Times(key string) (Times, error) {
	v, ok := p[key]
	if !ok {
		return Times{1, 1}, nil
	}
	switch t := v.(type) {
	case Times:
		return t, t.validate()
	case []interface{}:
		if len(t) != 2 {
			return Times{}, fmt.Errorf("%w: %s must be {n, m}", ErrBadParam, key)
		}
		pp := Params{"n": t[0], "m": t[1]}
		n, err := pp.Int("n", 0)
		if err != nil {
			return Times{}, err
		}
		m, err := pp.Int("m", 0)
		if err != nil {
			return Times{}, err
		}
		tm := Times{N: n, M: m}
		return tm, tm.validate()
	}
	n, err := p.Int(key, 1)
	if err != nil {
		return Times{}, err
	}
	tm := Times{N: n, M: n}
	return tm, tm.validate()
}

// Times asks that a sample be true at least N out of the last M times.
type Times struct {
	N int
	M int
}

func (t Times) validate() error {
	if t.N < 1 || t.M < t.N {
		return fmt.Errorf("%w: times wants 1 <= n <= m, got {%d, %d}",
			ErrBadParam, t.N, t.M)
	}
	return nil
}

// window is the rolling sample history behind Times.
type window struct {
	times   Times
	samples []bool
	next    int
}

func newWindow(t Times) *window {
	if t.M < 1 {
		t = Times{1, 1}
	}
	return &window{times: t, samples: make([]bool, 0, t.M)}
}

// push records a sample and reports whether the window is satisfied.
func (w *window) push(v bool) bool {
	if len(w.samples) < w.times.M {
		w.samples = append(w.samples, v)
	} else {
		w.samples[w.next] = v
		w.next = (w.next + 1) % w.times.M
	}
	hits := 0
	for _, s := range w.samples {
		if s {
			hits++
		}
	}
	return hits >= w.times.N
}

// ConditionFactory builds a condition from parameters.
type ConditionFactory func(p Params) (Condition, error)

var (
	kindsMx sync.RWMutex
	kinds   = map[string]ConditionFactory{}
)

// RegisterCondition makes a condition kind available by name to
// NewCondition, and hence to declaration scripts.
func RegisterCondition(kind string, f ConditionFactory) {
	kindsMx.Lock()
	kinds[kind] = f
	kindsMx.Unlock()
}

// NewCondition builds a registered condition kind.
func NewCondition(kind string, p Params) (Condition, error) {
	kindsMx.RLock()
	f, ok := kinds[kind]
	kindsMx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if p == nil {
		p = Params{}
	}
	c, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return c, nil
}

// ConditionKinds lists the registered kinds, sorted.
func ConditionKinds() []string {
	kindsMx.RLock()
	defer kindsMx.RUnlock()
	rv := make([]string, 0, len(kinds))
	for k := range kinds {
		rv = append(rv, k)
	}
	sort.Strings(rv)
	return rv
}
