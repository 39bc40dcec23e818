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

package main

import (
	"bytes"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/gdamore/warden"
	"github.com/gdamore/warden/rest"
	. "github.com/smartystreets/goconvey/convey"
)

type quiet struct {
	up bool
	sync.Mutex
}

func (q *quiet) set(up bool) error {
	q.Lock()
	q.up = up
	q.Unlock()
	return nil
}

func (q *quiet) Start() error                { return q.set(true) }
func (q *quiet) Stop() error                 { return q.set(false) }
func (q *quiet) Restart() error              { return q.set(true) }
func (q *quiet) Signal(syscall.Signal) error { return nil }
func (q *quiet) Pid() int                    { return 0 }
func (q *quiet) Unregister()                 {}

func (q *quiet) Alive() bool {
	q.Lock()
	defer q.Unlock()
	return q.up
}

type nameLoader struct{}

func (nameLoader) LoadFile(*warden.Registry, string) error { return nil }
func (nameLoader) LoadString(r *warden.Registry, src string) error {
	_, err := r.Watch(func(c *warden.WatchConfig) error {
		c.Name = strings.TrimSpace(src)
		c.Start = "true"
		c.Autostart = false
		return nil
	})
	return err
}

func run(addr string, args ...string) (string, error) {
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"-a", addr}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	Convey("Given a daemon with two watches", t, func() {
		r := warden.NewRegistry("cli")
		r.SetLogger(log.New(io.Discard, "", 0))
		r.SetPidDir(t.TempDir())
		r.SetControllerFactory(func(*warden.WatchConfig, warden.ControllerEnv) warden.Controller {
			return &quiet{}
		})
		r.SetLoader(nameLoader{})
		for _, n := range []string{"web", "db"} {
			name := n
			_, err := r.Watch(func(c *warden.WatchConfig) error {
				c.Name = name
				c.Group = "site"
				c.Start = "true"
				return nil
			})
			So(err, ShouldBeNil)
		}
		ts := httptest.NewServer(rest.NewHandler(r))
		Reset(func() {
			ts.Close()
			r.Reset()
		})

		Convey("ping answers", func() {
			out, err := run(ts.URL, "ping")
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "pong\n")
		})

		Convey("status prints one line per watch", func() {
			out, err := run(ts.URL, "status")
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "web: unmonitored\ndb: unmonitored\n")
		})

		Convey("start applies to a group", func() {
			out, err := run(ts.URL, "start", "site")
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "Sent 'start' to: web db\n")

			out, err = run(ts.URL, "status", "-l", "db")
			So(err, ShouldBeNil)
			So(out, ShouldStartWith, "db")
			So(out, ShouldContainSubstring, "start")
			So(out, ShouldNotContainSubstring, "web")

			out, err = run(ts.URL, "history", "web")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "-> start")
		})

		Convey("unknown targets fail", func() {
			_, err := run(ts.URL, "stop", "nope")
			So(err, ShouldNotBeNil)
		})

		Convey("info describes a watch", func() {
			out, err := run(ts.URL, "info", "web")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Group:     site")
		})

		Convey("load sends scripts", func() {
			path := filepath.Join(t.TempDir(), "cache.lua")
			So(os.WriteFile(path, []byte("cache\n"), 0644), ShouldBeNil)
			out, err := run(ts.URL, "load", path)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "cache")
			_, err = r.Find("cache")
			So(err, ShouldBeNil)
		})

		Convey("log prints the daemon log", func() {
			r.Logger().Printf("marker line")
			out, err := run(ts.URL, "log")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "marker line")
		})

		Convey("bad credentials are refused before connecting", func() {
			_, err := run(ts.URL, "-u", "nopass", "ping")
			So(err, ShouldNotBeNil)
		})
	})
}
