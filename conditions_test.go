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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeTarget is a Target with fixed answers.
type fakeTarget struct {
	pid   int
	alive bool
}

func (t *fakeTarget) Name() string { return "fake" }
func (t *fakeTarget) Pid() int     { return t.pid }
func (t *fakeTarget) Alive() bool  { return t.alive }

func TestParams(t *testing.T) {
	Convey("Params", t, func() {
		p := Params{
			"s":    "text",
			"n":    3.0,
			"i":    7,
			"b":    true,
			"d":    "150ms",
			"secs": 2,
			"pair": []interface{}{2.0, 5.0},
		}
		s, err := p.Text("s", "")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "text")
		_, err = p.Text("n", "")
		So(errors.Is(err, ErrBadParam), ShouldBeTrue)

		f, err := p.Float("i", 0)
		So(err, ShouldBeNil)
		So(f, ShouldEqual, 7.0)
		i, err := p.Int("n", 0)
		So(err, ShouldBeNil)
		So(i, ShouldEqual, 3)
		i, err = p.Int("missing", 9)
		So(err, ShouldBeNil)
		So(i, ShouldEqual, 9)

		b, err := p.Bool("b", false)
		So(err, ShouldBeNil)
		So(b, ShouldBeTrue)

		d, err := p.Duration("d", 0)
		So(err, ShouldBeNil)
		So(d, ShouldEqual, 150*time.Millisecond)
		d, err = p.Duration("secs", 0)
		So(err, ShouldBeNil)
		So(d, ShouldEqual, 2*time.Second)
		_, err = p.Duration("b", 0)
		So(errors.Is(err, ErrBadParam), ShouldBeTrue)

		tm, err := p.Times("pair")
		So(err, ShouldBeNil)
		So(tm, ShouldResemble, Times{N: 2, M: 5})
		tm, err = p.Times("i")
		So(err, ShouldBeNil)
		So(tm, ShouldResemble, Times{N: 7, M: 7})
		tm, err = p.Times("missing")
		So(err, ShouldBeNil)
		So(tm, ShouldResemble, Times{N: 1, M: 1})
		_, err = Params{"t": []interface{}{5.0, 2.0}}.Times("t")
		So(errors.Is(err, ErrBadParam), ShouldBeTrue)
	})
}

func TestWindow(t *testing.T) {
	Convey("A 2 of 3 window", t, func() {
		w := newWindow(Times{N: 2, M: 3})
		So(w.push(true), ShouldBeFalse)
		So(w.push(false), ShouldBeFalse)
		So(w.push(true), ShouldBeTrue)
		So(w.push(false), ShouldBeFalse)
		So(w.push(true), ShouldBeTrue)
		So(w.push(false), ShouldBeFalse)
	})
}

func TestConditionRegistry(t *testing.T) {
	Convey("Condition kinds", t, func() {
		So(ConditionKinds(), ShouldContain, "process_running")
		So(ConditionKinds(), ShouldContain, "file_touched")

		_, err := NewCondition("nosuch", nil)
		So(errors.Is(err, ErrUnknownKind), ShouldBeTrue)

		_, err = NewCondition("memory_usage", Params{})
		So(errors.Is(err, ErrBadParam), ShouldBeTrue)
		So(err.Error(), ShouldStartWith, "memory_usage")

		Convey("New kinds can be registered", func() {
			RegisterCondition("always", func(Params) (Condition, error) {
				return &Lambda{Fn: func(Target) bool { return true }}, nil
			})
			c, err := NewCondition("always", nil)
			So(err, ShouldBeNil)
			So(c.(PollCondition).Test(&fakeTarget{}), ShouldBeTrue)
		})
	})
}

func TestProcessRunning(t *testing.T) {
	Convey("process_running", t, func() {
		c, err := NewCondition("process_running", Params{"running": false, "interval": 3})
		So(err, ShouldBeNil)
		pc := c.(PollCondition)
		So(pc.Interval(), ShouldEqual, 3*time.Second)
		So(pc.Test(&fakeTarget{alive: false}), ShouldBeTrue)
		So(pc.Test(&fakeTarget{alive: true}), ShouldBeFalse)
	})
}

func TestProcessExits(t *testing.T) {
	Convey("process_exits", t, func() {
		c, err := NewCondition("process_exits", nil)
		So(err, ShouldBeNil)
		ec := c.(EventCondition)
		So(ec.Matches(Event{Kind: EventProcessExit}), ShouldBeTrue)
		So(ec.Matches(Event{Kind: EventProcessExit, Expected: true}), ShouldBeFalse)
		So(ec.Matches(Event{Kind: EventFileChange}), ShouldBeFalse)
	})
}

func TestMemoryUsage(t *testing.T) {
	Convey("memory_usage", t, func() {
		if _, err := os.Stat("/proc/self/statm"); err != nil {
			SkipSo("no /proc")
			return
		}
		me := &fakeTarget{pid: os.Getpid(), alive: true}
		c, err := NewCondition("memory_usage", Params{"above": 1024, "times": []interface{}{2, 3}})
		So(err, ShouldBeNil)
		pc := c.(PollCondition)
		So(pc.Test(me), ShouldBeFalse)
		So(pc.Test(me), ShouldBeTrue)

		huge, err := NewCondition("memory_usage", Params{"above": 1 << 50})
		So(err, ShouldBeNil)
		So(huge.(PollCondition).Test(me), ShouldBeFalse)
		So(huge.(PollCondition).Test(&fakeTarget{}), ShouldBeFalse)
	})
}

func TestCPUUsage(t *testing.T) {
	Convey("cpu_usage", t, func() {
		if _, err := os.Stat("/proc/self/stat"); err != nil {
			SkipSo("no /proc")
			return
		}
		me := &fakeTarget{pid: os.Getpid(), alive: true}
		c, err := NewCondition("cpu_usage", Params{"above": 1000})
		So(err, ShouldBeNil)
		pc := c.(PollCondition)
		So(pc.Test(me), ShouldBeFalse)
		time.Sleep(20 * time.Millisecond)
		So(pc.Test(me), ShouldBeFalse)

		_, err = cpuTicks(os.Getpid())
		So(err, ShouldBeNil)
		So(zombie(os.Getpid()), ShouldBeFalse)
	})
}

func TestFileExists(t *testing.T) {
	Convey("file_exists", t, func() {
		path := filepath.Join(t.TempDir(), "flag")
		c, err := NewCondition("file_exists", Params{"path": path})
		So(err, ShouldBeNil)
		pc := c.(PollCondition)
		So(pc.Test(nil), ShouldBeFalse)
		So(os.WriteFile(path, nil, 0644), ShouldBeNil)
		So(pc.Test(nil), ShouldBeTrue)

		absent, err := NewCondition("file_exists", Params{"path": path, "exists": false})
		So(err, ShouldBeNil)
		So(absent.(PollCondition).Test(nil), ShouldBeFalse)

		_, err = NewCondition("file_exists", nil)
		So(errors.Is(err, ErrBadParam), ShouldBeTrue)
	})
}

func TestFileTouched(t *testing.T) {
	Convey("file_touched", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "restart.txt")
		c, err := NewCondition("file_touched", Params{"path": path})
		So(err, ShouldBeNil)
		ec := c.(EventCondition)

		events := make(chan Event, 16)
		So(ec.Arm(&fakeTarget{}, func(ev Event) { events <- ev }), ShouldBeNil)
		defer ec.Disarm()

		So(os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0644), ShouldBeNil)
		So(os.WriteFile(path, []byte("x"), 0644), ShouldBeNil)

		select {
		case ev := <-events:
			So(ev.Kind, ShouldEqual, EventFileChange)
			So(ev.Path, ShouldEqual, path)
			So(ec.Matches(ev), ShouldBeTrue)
		case <-time.After(5 * time.Second):
			So("no event", ShouldBeEmpty)
		}
		So(ec.Matches(Event{Kind: EventFileChange, Path: "/elsewhere"}), ShouldBeFalse)
	})
}

func TestHTTPResponse(t *testing.T) {
	Convey("http_response", t, func() {
		var code atomic.Int32
		code.Store(http.StatusOK)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(int(code.Load()))
		}))
		defer srv.Close()

		c, err := NewCondition("http_response", Params{"url": srv.URL, "code_is_not": 200, "timeout": 1})
		So(err, ShouldBeNil)
		pc := c.(PollCondition)
		So(pc.Test(nil), ShouldBeFalse)
		code.Store(http.StatusInternalServerError)
		So(pc.Test(nil), ShouldBeTrue)

		ok, err := NewCondition("http_response", Params{"url": srv.URL, "code_is": 500})
		So(err, ShouldBeNil)
		So(ok.(PollCondition).Test(nil), ShouldBeTrue)

		Convey("A dead server is a mismatch", func() {
			srv.Close()
			So(pc.Test(nil), ShouldBeTrue)
		})
	})
}
