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
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

func init() {
	RegisterCondition("process_running", newProcessRunning)
	RegisterCondition("process_exits", newProcessExits)
	RegisterCondition("memory_usage", newMemoryUsage)
	RegisterCondition("cpu_usage", newCPUUsage)
	RegisterCondition("file_exists", newFileExists)
	RegisterCondition("file_touched", newFileTouched)
	RegisterCondition("http_response", newHTTPResponse)
}

// ProcessRunning is true when the process liveness equals Running.
type ProcessRunning struct {
	Running bool
	Every   time.Duration
}

func newProcessRunning(p Params) (Condition, error) {
	c := &ProcessRunning{}
	var err error
	if c.Running, err = p.Bool("running", true); err != nil {
		return nil, err
	}
	if c.Every, err = p.Duration("interval", 0); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ProcessRunning) Kind() string            { return "process_running" }
func (c *ProcessRunning) Interval() time.Duration { return c.Every }
func (c *ProcessRunning) Test(t Target) bool      { return t.Alive() == c.Running }

// ProcessExits fires when the supervised process exits for a reason other
// than our own stop or restart.
type ProcessExits struct{}

func newProcessExits(Params) (Condition, error) {
	return &ProcessExits{}, nil
}

func (c *ProcessExits) Kind() string                  { return "process_exits" }
func (c *ProcessExits) Arm(Target, func(Event)) error { return nil }
func (c *ProcessExits) Disarm()                       {}
func (c *ProcessExits) Matches(ev Event) bool {
	return ev.Kind == EventProcessExit && !ev.Expected
}

// MemoryUsage is true when resident memory is above Above bytes for the
// configured number of samples.
type MemoryUsage struct {
	Above uint64
	Every time.Duration
	win   *window
}

func newMemoryUsage(p Params) (Condition, error) {
	above, err := p.Float("above", 0)
	if err != nil {
		return nil, err
	}
	if above <= 0 {
		return nil, ErrBadParam
	}
	times, err := p.Times("times")
	if err != nil {
		return nil, err
	}
	every, err := p.Duration("interval", 0)
	if err != nil {
		return nil, err
	}
	return &MemoryUsage{Above: uint64(above), Every: every, win: newWindow(times)}, nil
}

func (c *MemoryUsage) Kind() string            { return "memory_usage" }
func (c *MemoryUsage) Interval() time.Duration { return c.Every }

func (c *MemoryUsage) Test(t Target) bool {
	rss, err := residentBytes(t.Pid())
	if err != nil {
		return false
	}
	return c.win.push(rss > c.Above)
}

// CPUUsage is true when the process CPU share, in percent of one CPU
// since the previous sample, is above Above for enough samples.
type CPUUsage struct {
	Above float64
	Every time.Duration
	win   *window
	pid   int
	ticks uint64
	stamp time.Time
}

func newCPUUsage(p Params) (Condition, error) {
	above, err := p.Float("above", 0)
	if err != nil {
		return nil, err
	}
	if above <= 0 {
		return nil, ErrBadParam
	}
	times, err := p.Times("times")
	if err != nil {
		return nil, err
	}
	every, err := p.Duration("interval", 0)
	if err != nil {
		return nil, err
	}
	return &CPUUsage{Above: above, Every: every, win: newWindow(times)}, nil
}

func (c *CPUUsage) Kind() string            { return "cpu_usage" }
func (c *CPUUsage) Interval() time.Duration { return c.Every }

func (c *CPUUsage) Test(t Target) bool {
	pid := t.Pid()
	ticks, err := cpuTicks(pid)
	if err != nil {
		return false
	}
	now := time.Now()
	if pid != c.pid || c.stamp.IsZero() {
		// First sample for this process; nothing to compare against.
		c.pid, c.ticks, c.stamp = pid, ticks, now
		return false
	}
	elapsed := now.Sub(c.stamp).Seconds()
	used := float64(ticks-c.ticks) / clockTicks
	c.ticks, c.stamp = ticks, now
	if elapsed <= 0 {
		return false
	}
	return c.win.push(used/elapsed*100 > c.Above)
}

// FileExists is true when the existence of Path equals Exists.
type FileExists struct {
	Path   string
	Exists bool
	Every  time.Duration
}

func newFileExists(p Params) (Condition, error) {
	c := &FileExists{}
	var err error
	if c.Path, err = p.Text("path", ""); err != nil {
		return nil, err
	}
	if c.Path == "" {
		return nil, ErrBadParam
	}
	if c.Exists, err = p.Bool("exists", true); err != nil {
		return nil, err
	}
	if c.Every, err = p.Duration("interval", 0); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *FileExists) Kind() string            { return "file_exists" }
func (c *FileExists) Interval() time.Duration { return c.Every }

func (c *FileExists) Test(Target) bool {
	_, err := os.Stat(c.Path)
	return (err == nil) == c.Exists
}

// FileTouched fires when Path is created or written.  The containing
// directory is watched so that the file may be created after arming.
type FileTouched struct {
	Path string

	mx      sync.Mutex
	watcher *fsnotify.Watcher
}

func newFileTouched(p Params) (Condition, error) {
	path, err := p.Text("path", "")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, ErrBadParam
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &FileTouched{Path: path}, nil
}

func (c *FileTouched) Kind() string { return "file_touched" }

func (c *FileTouched) Arm(t Target, post func(Event)) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(c.Path)); err != nil {
		w.Close()
		return err
	}
	c.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != c.Path {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) == 0 {
					continue
				}
				post(Event{
					Kind: EventFileChange,
					Path: c.Path,
					Time: time.Now(),
				})
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (c *FileTouched) Disarm() {
	c.mx.Lock()
	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}
	c.mx.Unlock()
}

func (c *FileTouched) Matches(ev Event) bool {
	return ev.Kind == EventFileChange && ev.Path == c.Path
}

// HTTPResponse probes URL and compares the status code.  With CodeIsNot
// set it is true when the code differs (a failing health check); otherwise
// it is true when the code equals Code.  A failed request counts as a
// mismatch.
type HTTPResponse struct {
	URL       string
	Code      int
	CodeIsNot bool
	Timeout   time.Duration
	Every     time.Duration
	win       *window
	client    *http.Client
}

func newHTTPResponse(p Params) (Condition, error) {
	c := &HTTPResponse{}
	var err error
	if c.URL, err = p.Text("url", ""); err != nil {
		return nil, err
	}
	if c.URL == "" {
		return nil, ErrBadParam
	}
	switch {
	case p.has("code_is_not"):
		c.CodeIsNot = true
		c.Code, err = p.Int("code_is_not", 200)
	default:
		c.Code, err = p.Int("code_is", 200)
	}
	if err != nil {
		return nil, err
	}
	if c.Timeout, err = p.Duration("timeout", 10*time.Second); err != nil {
		return nil, err
	}
	if c.Every, err = p.Duration("interval", 0); err != nil {
		return nil, err
	}
	times, err := p.Times("times")
	if err != nil {
		return nil, err
	}
	c.win = newWindow(times)
	c.client = &http.Client{Timeout: c.Timeout}
	return c, nil
}

func (c *HTTPResponse) Kind() string            { return "http_response" }
func (c *HTTPResponse) Interval() time.Duration { return c.Every }

func (c *HTTPResponse) Test(Target) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	code := 0
	if req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil); err == nil {
		if res, err := c.client.Do(req); err == nil {
			code = res.StatusCode
			res.Body.Close()
		}
	}
	if c.CodeIsNot {
		return c.win.push(code != c.Code)
	}
	return c.win.push(code == c.Code)
}

// Lambda wraps a Go predicate.  It cannot be built from Params.
type Lambda struct {
	Fn    func(t Target) bool
	Every time.Duration
}

func (c *Lambda) Kind() string            { return "lambda" }
func (c *Lambda) Interval() time.Duration { return c.Every }
func (c *Lambda) Test(t Target) bool      { return c.Fn(t) }
