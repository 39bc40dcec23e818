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
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// flag is a poll condition the test flips.
type flag struct {
	v bool
	sync.Mutex
}

func (f *flag) set(v bool) {
	f.Lock()
	f.v = v
	f.Unlock()
}

func (f *flag) cond() *Lambda {
	return &Lambda{Fn: func(Target) bool {
		f.Lock()
		defer f.Unlock()
		return f.v
	}}
}

// testEv is an event condition matching custom events.
type testEv struct {
	armed    int
	disarmed int
}

func (c *testEv) Kind() string                  { return "test_event" }
func (c *testEv) Arm(Target, func(Event)) error { c.armed++; return nil }
func (c *testEv) Disarm()                       { c.disarmed++ }
func (c *testEv) Matches(ev Event) bool         { return ev.Kind == EventCustom }

func (c *testC) setAlive(v bool) {
	c.Lock()
	c.alive = v
	c.Unlock()
}

func (c *testC) setFail(v bool) {
	c.Lock()
	c.failStart = v
	c.Unlock()
}

func exited() Event {
	return Event{Kind: EventProcessExit, Pid: 42, Time: time.Now()}
}

func TestWatchConditions(t *testing.T) {
	Convey("Watch conditions", t, WithRegistry(t, func(r *Registry, f *testF) {
		a, b := &flag{}, &flag{}
		ev := &testEv{}
		w := mustWatch(r, func(c *WatchConfig) {
			c.Name = "foo"
			c.Start = "bar"
			c.RestartIf(a.cond(), b.cond())
			c.On(TriggerRestart, ev)
		})
		ctl := f.get("foo")
		So(w.Monitor(), ShouldBeNil)
		So(ev.armed, ShouldEqual, 1)
		w.poll(later())
		So(w.State(), ShouldEqual, StateUp)

		Convey("Poll conditions must all hold", func() {
			a.set(true)
			w.poll(later())
			So(w.State(), ShouldEqual, StateUp)
			b.set(true)
			w.poll(later().Add(time.Hour))
			So(w.State(), ShouldEqual, StateRestart)
			_, _, restarts := ctl.counts()
			So(restarts, ShouldEqual, 1)
		})

		Convey("Conditions are not evaluated before they are due", func() {
			a.set(true)
			b.set(true)
			w.poll(time.Now())
			So(w.State(), ShouldEqual, StateUp)
		})

		Convey("An event condition fires on its own", func() {
			w.handleEvent(Event{Kind: EventCustom})
			So(w.State(), ShouldEqual, StateRestart)
		})

		Convey("Events are ignored when unmonitored", func() {
			So(w.Unmonitor(), ShouldBeNil)
			So(ev.disarmed, ShouldBeGreaterThan, 0)
			w.handleEvent(Event{Kind: EventCustom})
			So(w.State(), ShouldEqual, StateUnmonitored)
		})

		Convey("Events reach the watch through the registry", func() {
			w.post(Event{Kind: EventCustom})
			So(eventually(func() bool {
				return w.State() == StateRestart
			}), ShouldBeTrue)
		})
	}))
}

func TestWatchLifecycle(t *testing.T) {
	Convey("Watch lifecycle", t, WithRegistry(t, func(r *Registry, f *testF) {
		Convey("An unexpected exit starts the process again", func() {
			w := mustWatch(r, func(c *WatchConfig) {
				c.Name = "foo"
				c.Start = "bar"
			})
			ctl := f.get("foo")
			So(w.Monitor(), ShouldBeNil)
			w.poll(later())
			So(w.State(), ShouldEqual, StateUp)

			ctl.setAlive(false)
			w.handleEvent(exited())
			So(w.State(), ShouldEqual, StateStart)
			spawns, _, _ := ctl.counts()
			So(spawns, ShouldEqual, 2)
		})

		Convey("An expected exit is ignored", func() {
			w := mustWatch(r, func(c *WatchConfig) {
				c.Name = "foo"
				c.Start = "bar"
			})
			So(w.Monitor(), ShouldBeNil)
			w.poll(later())
			ev := exited()
			ev.Expected = true
			w.handleEvent(ev)
			So(w.State(), ShouldEqual, StateUp)
		})

		Convey("Without lifecycle an exit is ignored", func() {
			w := mustWatch(r, func(c *WatchConfig) {
				c.Name = "foo"
				c.Start = "bar"
				c.Lifecycle = false
			})
			So(w.Monitor(), ShouldBeNil)
			w.poll(later())
			f.get("foo").setAlive(false)
			w.handleEvent(exited())
			So(w.State(), ShouldEqual, StateUp)
		})

		Convey("Dying while starting starts again", func() {
			w := mustWatch(r, func(c *WatchConfig) {
				c.Name = "foo"
				c.Start = "bar"
			})
			ctl := f.get("foo")
			So(w.Monitor(), ShouldBeNil)
			ctl.setAlive(false)
			w.handleEvent(exited())
			So(w.State(), ShouldEqual, StateStart)
			spawns, _, _ := ctl.counts()
			So(spawns, ShouldEqual, 2)
		})

		Convey("A running process is adopted", func() {
			w := mustWatch(r, func(c *WatchConfig) {
				c.Name = "foo"
				c.Start = "bar"
			})
			ctl := f.get("foo")
			ctl.setAlive(true)
			So(w.Monitor(), ShouldBeNil)
			So(w.State(), ShouldEqual, StateUp)
			spawns, _, _ := ctl.counts()
			So(spawns, ShouldEqual, 0)
		})

		Convey("Up conditions confirm a start", func() {
			ok := &flag{}
			w := mustWatch(r, func(c *WatchConfig) {
				c.Name = "foo"
				c.Start = "bar"
				c.UpIf(ok.cond())
			})
			So(w.Monitor(), ShouldBeNil)
			w.poll(later())
			So(w.State(), ShouldEqual, StateStart)
			ok.set(true)
			w.poll(later().Add(time.Hour))
			So(w.State(), ShouldEqual, StateUp)
		})

		Convey("Stop conditions stop the process", func() {
			done := &flag{}
			w := mustWatch(r, func(c *WatchConfig) {
				c.Name = "foo"
				c.Start = "bar"
				c.StopIf(done.cond())
			})
			ctl := f.get("foo")
			So(w.Monitor(), ShouldBeNil)
			w.poll(later())
			done.set(true)
			w.poll(later().Add(time.Hour))
			So(w.State(), ShouldEqual, StateUnmonitored)
			_, stops, _ := ctl.counts()
			So(stops, ShouldEqual, 1)

			trs := w.Transitions()
			So(len(trs), ShouldEqual, 4)
			So(trs[2].From, ShouldEqual, StateUp)
			So(trs[2].To, ShouldEqual, StateStop)
			So(trs[3].To, ShouldEqual, StateUnmonitored)
		})

		Convey("Signals reach the controller", func() {
			w := mustWatch(r, func(c *WatchConfig) {
				c.Name = "foo"
				c.Start = "bar"
			})
			So(w.Signal(syscall.SIGHUP), ShouldBeNil)
			ctl := f.get("foo")
			ctl.Lock()
			So(ctl.signals, ShouldResemble, []syscall.Signal{syscall.SIGHUP})
			ctl.Unlock()
		})
	}))
}

func TestCrashLoop(t *testing.T) {
	Convey("Crash loop guard", t, WithRegistry(t, func(r *Registry, f *testF) {
		w := mustWatch(r, func(c *WatchConfig) {
			c.Name = "flappy"
			c.Start = "bar"
			c.MaxRestarts = 3
			c.RestartWindow = time.Hour
		})
		ctl := f.get("flappy")

		Convey("Gives up after too many starts", func() {
			So(w.Monitor(), ShouldBeNil)
			for i := 0; i < 2; i++ {
				w.poll(later())
				So(w.State(), ShouldEqual, StateUp)
				ctl.setAlive(false)
				w.handleEvent(exited())
				So(w.State(), ShouldEqual, StateStart)
			}
			w.poll(later())
			ctl.setAlive(false)
			w.handleEvent(exited())

			So(w.State(), ShouldEqual, StateUnmonitored)
			So(w.Failed(), ShouldBeTrue)
			spawns, stops, _ := ctl.counts()
			So(spawns, ShouldEqual, 3)
			So(stops, ShouldEqual, 1)
			trs := w.Transitions()
			So(trs[len(trs)-1].Fatal, ShouldBeTrue)
			reason, _ := w.Status()
			So(reason, ShouldContainSubstring, ErrCrashLoop.Error())

			Convey("Monitoring again clears the failure", func() {
				So(w.Monitor(), ShouldBeNil)
				So(w.Failed(), ShouldBeFalse)
				So(w.State(), ShouldEqual, StateStart)
				spawns, _, _ := ctl.counts()
				So(spawns, ShouldEqual, 4)
			})
		})

		Convey("Spawn failures are retried then given up", func() {
			ctl.setFail(true)
			So(w.Monitor(), ShouldBeNil)
			So(w.State(), ShouldEqual, StateStart)
			reason, _ := w.Status()
			So(reason, ShouldContainSubstring, "Injected failure")

			w.poll(later())
			So(w.State(), ShouldEqual, StateStart)
			w.poll(later())
			So(w.State(), ShouldEqual, StateStart)
			w.poll(later())
			So(w.State(), ShouldEqual, StateUnmonitored)
			So(w.Failed(), ShouldBeTrue)

			Convey("And recover once spawning works", func() {
				ctl.setFail(false)
				So(w.Monitor(), ShouldBeNil)
				w.poll(later())
				So(w.State(), ShouldEqual, StateUp)
			})
		})

		Convey("Old starts age out of the window", func() {
			So(w.allowStart(time.Now()), ShouldBeTrue)
			w.starts = []time.Time{
				time.Now().Add(-2 * time.Hour),
				time.Now().Add(-2 * time.Hour),
				time.Now(),
			}
			So(w.allowStart(time.Now()), ShouldBeTrue)
			So(len(w.starts), ShouldEqual, 1)
		})
	}))
}

func TestWatchInfo(t *testing.T) {
	Convey("Watch info", t, WithRegistry(t, func(r *Registry, f *testF) {
		w := mustWatch(r, func(c *WatchConfig) {
			c.Name = "foo"
			c.Group = "bar"
			c.Start = "baz"
			c.Autostart = false
		})
		i := w.Info()
		So(i.Name, ShouldEqual, "foo")
		So(i.Group, ShouldEqual, "bar")
		So(i.State, ShouldEqual, "unmonitored")
		So(i.Autostart, ShouldBeFalse)
		So(i.Pid, ShouldEqual, 0)

		So(w.Monitor(), ShouldBeNil)
		i = w.Info()
		So(i.State, ShouldEqual, "start")
		So(i.Pid, ShouldEqual, 1001)
		So(i.Reason, ShouldEqual, "Monitored")
	}))
}

func TestStateNames(t *testing.T) {
	Convey("States and triggers", t, func() {
		So(StateUnset.String(), ShouldEqual, "unmonitored")
		So(StateUp.String(), ShouldEqual, "up")
		So(StateUp.Monitored(), ShouldBeTrue)
		So(StateUnmonitored.Monitored(), ShouldBeFalse)

		tr, err := ParseTrigger("restart")
		So(err, ShouldBeNil)
		So(tr.Target(), ShouldEqual, StateRestart)
		So(TriggerUp.ActiveIn(StateStart), ShouldBeTrue)
		So(TriggerUp.ActiveIn(StateUp), ShouldBeFalse)
		So(TriggerStop.ActiveIn(StateUp), ShouldBeTrue)
		_, err = ParseTrigger("explode")
		So(err, ShouldEqual, ErrUnknownTrigger)
	})
}
