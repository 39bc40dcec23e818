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
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

// testC is a Controller that only counts.
type testC struct {
	name         string
	spawns       int
	stops        int
	restarts     int
	signals      []syscall.Signal
	alive        bool
	pid          int
	failStart    bool
	unregistered bool
	post         func(Event)
	spawned      func(name string)
	stopHook     func()
	sync.Mutex
}

func (c *testC) Start() error {
	c.Lock()
	defer c.Unlock()
	if c.alive {
		return ErrAlreadyRunning
	}
	if c.failStart {
		return errors.New("Injected failure")
	}
	c.spawns++
	c.alive = true
	c.pid = 1000 + c.spawns
	if c.spawned != nil {
		c.spawned(c.name)
	}
	return nil
}

func (c *testC) Stop() error {
	c.Lock()
	hook := c.stopHook
	c.stopHook = nil
	c.Unlock()
	if hook != nil {
		hook()
	}

	c.Lock()
	defer c.Unlock()
	c.stops++
	c.alive = false
	c.pid = 0
	return nil
}

func (c *testC) Restart() error {
	c.Lock()
	defer c.Unlock()
	c.restarts++
	c.alive = true
	return nil
}

func (c *testC) Signal(sig syscall.Signal) error {
	c.Lock()
	defer c.Unlock()
	c.signals = append(c.signals, sig)
	return nil
}

func (c *testC) Alive() bool {
	c.Lock()
	defer c.Unlock()
	return c.alive
}

func (c *testC) Pid() int {
	c.Lock()
	defer c.Unlock()
	return c.pid
}

func (c *testC) Unregister() {
	c.Lock()
	c.unregistered = true
	c.Unlock()
}

// crash makes the process die unexpectedly.
func (c *testC) crash() {
	c.Lock()
	pid := c.pid
	c.alive = false
	post := c.post
	c.Unlock()
	post(Event{Kind: EventProcessExit, Pid: pid, Time: time.Now()})
}

func (c *testC) counts() (spawns, stops, restarts int) {
	c.Lock()
	defer c.Unlock()
	return c.spawns, c.stops, c.restarts
}

// testF hands out testC controllers and remembers them.
type testF struct {
	ctls   map[string][]*testC
	spawns []string
	sync.Mutex
}

func newTestF() *testF {
	return &testF{ctls: make(map[string][]*testC)}
}

func (f *testF) New(cfg *WatchConfig, env ControllerEnv) Controller {
	c := &testC{name: cfg.Name, post: env.Post, spawned: f.spawned}
	f.Lock()
	f.ctls[cfg.Name] = append(f.ctls[cfg.Name], c)
	f.Unlock()
	return c
}

func (f *testF) spawned(name string) {
	f.Lock()
	f.spawns = append(f.spawns, name)
	f.Unlock()
}

func (f *testF) get(name string) *testC {
	f.Lock()
	defer f.Unlock()
	l := f.ctls[name]
	if len(l) == 0 {
		return nil
	}
	return l[len(l)-1]
}

func (f *testF) spawnOrder() []string {
	f.Lock()
	defer f.Unlock()
	return append([]string{}, f.spawns...)
}

// testL is a Loader whose sources name canned declaration functions.
type testL struct {
	decls map[string]func(r *Registry) error
	files []string
	sync.Mutex
}

func (l *testL) LoadString(r *Registry, src string) error {
	fn, ok := l.decls[strings.TrimSpace(src)]
	if !ok {
		return errors.New("unknown source: " + src)
	}
	return fn(r)
}

func (l *testL) LoadFile(r *Registry, path string) error {
	l.Lock()
	l.files = append(l.files, path)
	l.Unlock()
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return l.LoadString(r, string(b))
}

func declare(name, group string, autostart bool) func(r *Registry) error {
	return func(r *Registry) error {
		_, err := r.Watch(func(c *WatchConfig) error {
			c.Name = name
			c.Group = group
			c.Start = "sleep 3600"
			c.Autostart = autostart
			return nil
		})
		return err
	}
}

func WithRegistry(t *testing.T, fn func(r *Registry, f *testF)) func() {
	return func() {
		r := NewRegistry("test")
		So(r, ShouldNotBeNil)
		r.SetLogger(log.New(&testLog{t: t}, "", 0))
		f := newTestF()
		r.SetControllerFactory(f.New)
		So(r.SetPidDir(t.TempDir()), ShouldBeNil)
		So(r.SetTick(10*time.Millisecond), ShouldBeNil)
		r.Events().Start()
		Reset(func() {
			r.Reset()
		})
		fn(r, f)
	}
}

// startRegistry runs Start in the background until the returned function
// is called.
func startRegistry(r *Registry) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Start(ctx)
	}()
	for i := 0; i < 200 && !r.Running(); i++ {
		time.Sleep(5 * time.Millisecond)
	}
	return func() {
		cancel()
		<-done
	}
}

func eventually(fn func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fn()
}

func mustWatch(r *Registry, fn func(c *WatchConfig)) *Watch {
	w, err := r.Watch(func(c *WatchConfig) error {
		fn(c)
		return nil
	})
	So(err, ShouldBeNil)
	So(w, ShouldNotBeNil)
	return w
}

// later is far enough ahead that every poll condition is due.
func later() time.Time {
	return time.Now().Add(time.Hour)
}
