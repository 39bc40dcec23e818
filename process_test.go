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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

// These tests run real commands through /bin/sh, so they are specific to
// POSIX systems.

package warden

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestProcess(t *testing.T, dir string, start string, mod func(c *WatchConfig)) (*Process, chan Event) {
	cfg := newWatchConfig()
	cfg.Name = "proc"
	cfg.Start = start
	cfg.StopTimeout = 2 * time.Second
	if mod != nil {
		mod(cfg)
	}
	So(cfg.validate(), ShouldBeNil)
	events := make(chan Event, 16)
	p := NewProcess(cfg, ControllerEnv{
		PidDir: dir,
		Post:   func(ev Event) { events <- ev },
		Logger: log.New(&testLog{t: t}, "", 0),
	}).(*Process)
	return p, events
}

func nextEvent(events chan Event) (Event, bool) {
	select {
	case ev := <-events:
		return ev, true
	case <-time.After(5 * time.Second):
		return Event{}, false
	}
}

func TestProcessStartStop(t *testing.T) {
	Convey("Start and stop a process", t, func() {
		dir := t.TempDir()
		p, events := newTestProcess(t, dir, "sleep 3600", nil)
		So(p.Alive(), ShouldBeFalse)
		So(p.Pid(), ShouldEqual, 0)

		So(p.Start(), ShouldBeNil)
		pid := p.Pid()
		So(pid, ShouldBeGreaterThan, 0)
		So(p.Alive(), ShouldBeTrue)
		recorded, err := ReadPid(PidPath(dir, "proc"))
		So(err, ShouldBeNil)
		So(recorded, ShouldEqual, pid)

		So(p.Start(), ShouldEqual, ErrAlreadyRunning)

		So(p.Stop(), ShouldBeNil)
		So(p.Alive(), ShouldBeFalse)
		So(p.Pid(), ShouldEqual, 0)
		_, err = os.Stat(PidPath(dir, "proc"))
		So(os.IsNotExist(err), ShouldBeTrue)

		ev, ok := nextEvent(events)
		So(ok, ShouldBeTrue)
		So(ev.Kind, ShouldEqual, EventProcessExit)
		So(ev.Pid, ShouldEqual, pid)
		So(ev.Expected, ShouldBeTrue)
	})
}

func TestProcessExit(t *testing.T) {
	Convey("A process that exits posts an unexpected event", t, func() {
		p, events := newTestProcess(t, t.TempDir(), "sh -c 'exit 3'", nil)
		So(p.Start(), ShouldBeNil)
		ev, ok := nextEvent(events)
		So(ok, ShouldBeTrue)
		So(ev.Kind, ShouldEqual, EventProcessExit)
		So(ev.Expected, ShouldBeFalse)
		So(ev.Err, ShouldNotBeNil)
		So(p.Alive(), ShouldBeFalse)

		Convey("And can be started again", func() {
			So(p.Start(), ShouldBeNil)
			_, ok := nextEvent(events)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestProcessSpawnFailure(t *testing.T) {
	Convey("Spawn failures are reported", t, func() {
		p, _ := newTestProcess(t, t.TempDir(), "sleep 3600", func(c *WatchConfig) {
			c.Dir = "/nonexistent/directory"
		})
		So(p.Start(), ShouldNotBeNil)
		So(p.Alive(), ShouldBeFalse)
	})
}

func TestProcessStopEscalation(t *testing.T) {
	Convey("A process ignoring SIGTERM is killed", t, func() {
		p, events := newTestProcess(t, t.TempDir(), "trap '' TERM; sleep 3600", func(c *WatchConfig) {
			c.StopTimeout = 200 * time.Millisecond
		})
		So(p.Start(), ShouldBeNil)
		time.Sleep(50 * time.Millisecond)
		start := time.Now()
		So(p.Stop(), ShouldBeNil)
		So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 200*time.Millisecond)
		So(p.Alive(), ShouldBeFalse)
		ev, ok := nextEvent(events)
		So(ok, ShouldBeTrue)
		So(ev.Expected, ShouldBeTrue)
	})
}

func TestProcessStopCommand(t *testing.T) {
	Convey("The stop command sees $PID", t, func() {
		p, events := newTestProcess(t, t.TempDir(), "sleep 3600", func(c *WatchConfig) {
			c.Stop = "kill $PID"
		})
		So(p.Start(), ShouldBeNil)
		So(p.Stop(), ShouldBeNil)
		So(p.Alive(), ShouldBeFalse)
		ev, ok := nextEvent(events)
		So(ok, ShouldBeTrue)
		So(ev.Expected, ShouldBeTrue)
	})
}

func TestProcessSignal(t *testing.T) {
	Convey("Signals reach the process", t, func() {
		p, events := newTestProcess(t, t.TempDir(), "sleep 3600", nil)
		So(p.Signal(syscall.SIGTERM), ShouldEqual, ErrNoPid)
		So(p.Start(), ShouldBeNil)
		So(p.Signal(syscall.SIGTERM), ShouldBeNil)
		ev, ok := nextEvent(events)
		So(ok, ShouldBeTrue)
		So(ev.Expected, ShouldBeFalse)
		So(p.Alive(), ShouldBeFalse)
	})
}

func TestProcessRestart(t *testing.T) {
	Convey("Restart replaces the process", t, func() {
		p, events := newTestProcess(t, t.TempDir(), "sleep 3600", nil)
		So(p.Start(), ShouldBeNil)
		old := p.Pid()
		So(p.Restart(), ShouldBeNil)
		So(p.Pid(), ShouldNotEqual, old)
		So(p.Alive(), ShouldBeTrue)
		ev, ok := nextEvent(events)
		So(ok, ShouldBeTrue)
		So(ev.Pid, ShouldEqual, old)
		So(ev.Expected, ShouldBeTrue)
		So(p.Stop(), ShouldBeNil)
	})
}

func TestProcessDaemonizing(t *testing.T) {
	Convey("A daemonizing command is found by its PID file", t, func() {
		dir := t.TempDir()
		pf := filepath.Join(dir, "daemon.pid")
		p, events := newTestProcess(t, dir, "sleep 3600 & echo $! > "+pf, func(c *WatchConfig) {
			c.PidFile = pf
		})
		So(p.Start(), ShouldBeNil)
		pid, err := ReadPid(pf)
		So(err, ShouldBeNil)
		So(p.Pid(), ShouldEqual, pid)
		So(p.Alive(), ShouldBeTrue)

		So(p.Stop(), ShouldBeNil)
		So(p.Alive(), ShouldBeFalse)
		ev, ok := nextEvent(events)
		So(ok, ShouldBeTrue)
		So(ev.Pid, ShouldEqual, pid)
		So(ev.Expected, ShouldBeTrue)
	})
}

func TestProcessAdopt(t *testing.T) {
	Convey("A recorded live PID is adopted", t, func() {
		dir := t.TempDir()
		So(WritePid(PidPath(dir, "proc"), os.Getpid()), ShouldBeNil)
		p, _ := newTestProcess(t, dir, "sleep 3600", nil)
		defer p.Unregister()
		So(p.Pid(), ShouldEqual, os.Getpid())
		So(p.Alive(), ShouldBeTrue)
		So(p.Start(), ShouldEqual, ErrAlreadyRunning)
	})
}

func TestPidFiles(t *testing.T) {
	Convey("PID files", t, func() {
		dir := t.TempDir()
		So(PidPath(dir, "a/b"), ShouldEqual, filepath.Join(dir, "a_b.pid"))

		path := filepath.Join(dir, "x.pid")
		So(WritePid(path, 1234), ShouldBeNil)
		b, err := os.ReadFile(path)
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, strconv.Itoa(1234)+"\n")
		pid, err := ReadPid(path)
		So(err, ShouldBeNil)
		So(pid, ShouldEqual, 1234)

		So(os.WriteFile(path, []byte("zero"), 0644), ShouldBeNil)
		_, err = ReadPid(path)
		So(err, ShouldNotBeNil)
		So(os.WriteFile(path, []byte("0"), 0644), ShouldBeNil)
		_, err = ReadPid(path)
		So(errors.Is(err, ErrNoPid), ShouldBeTrue)
	})
}

func TestWatchWithProcess(t *testing.T) {
	Convey("A watch over a real process", t, func() {
		r := NewRegistry("real")
		r.SetLogger(log.New(&testLog{t: t}, "", 0))
		So(r.SetPidDir(t.TempDir()), ShouldBeNil)
		So(r.SetTick(20*time.Millisecond), ShouldBeNil)
		r.Events().Start()
		defer r.Reset()

		w, err := r.Watch(func(c *WatchConfig) error {
			c.Name = "sleeper"
			c.Start = "sleep 3600"
			c.StopTimeout = time.Second
			return nil
		})
		So(err, ShouldBeNil)
		So(w.Monitor(), ShouldBeNil)
		w.poll(later())
		So(w.State(), ShouldEqual, StateUp)
		first := w.Pid()

		So(w.Signal(syscall.SIGKILL), ShouldBeNil)
		So(eventually(func() bool {
			return w.Pid() != first && w.Pid() != 0
		}), ShouldBeTrue)
		So(w.State(), ShouldEqual, StateStart)

		So(w.Stop(), ShouldBeNil)
		So(w.Alive(), ShouldBeFalse)
		So(w.State(), ShouldEqual, StateUnmonitored)
	})
}
