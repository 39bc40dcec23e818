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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	foreignPollInterval = 250 * time.Millisecond
	killGrace           = 2 * time.Second
)

// Process is the standard Controller.  It runs commands through /bin/sh,
// places each child in its own process group, records the PID under the
// PID file directory, and posts an Event when the process exits.
//
// Commands that daemonize themselves are supported by setting PidFile on
// the watch; the PID is then read from that file and liveness is probed.
type Process struct {
	name       string
	startCmd   string
	stopCmd    string
	restartCmd string
	dir        string
	env        []string
	pidPath    string // ours, under the PID directory
	pidFile    string // the program's own, optional
	stopTime   time.Duration
	post       func(Event)
	logger     *log.Logger

	lock     sync.Mutex
	cmd      *exec.Cmd
	pid      int
	child    bool          // pid is our direct child
	exited   bool          // child has been reaped
	stopping bool          // an exit now is our doing
	done     chan struct{} // closed once the current process is gone
	quit     chan struct{} // stops the foreign liveness prober
}

// NewProcess is the default ControllerFactory.
func NewProcess(cfg *WatchConfig, env ControllerEnv) Controller {
	p := &Process{
		name:       cfg.Name,
		startCmd:   cfg.Start,
		stopCmd:    cfg.Stop,
		restartCmd: cfg.Restart,
		dir:        cfg.Dir,
		env:        append([]string{}, cfg.Env...),
		pidFile:    cfg.PidFile,
		stopTime:   cfg.StopTimeout,
		post:       env.Post,
		logger:     env.Logger,
	}
	if p.logger == nil {
		p.logger = log.New(os.Stderr, "["+cfg.Name+"] ", log.LstdFlags)
	}
	if p.post == nil {
		p.post = func(Event) {}
	}
	if env.PidDir != "" {
		p.pidPath = PidPath(env.PidDir, cfg.Name)
	}
	p.adopt()
	return p
}

// PidPath returns where the PID of the named watch is recorded.
func PidPath(dir, name string) string {
	name = strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(name)
	return filepath.Join(dir, name+".pid")
}

// ReadPid reads a decimal PID from a file.
func ReadPid(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if pid <= 0 {
		return 0, ErrNoPid
	}
	return pid, nil
}

// WritePid records pid as decimal text.
func WritePid(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	return !zombie(pid)
}

// adopt picks up a process recorded by an earlier daemon instance.
func (p *Process) adopt() {
	path := p.pidFile
	if path == "" {
		path = p.pidPath
	}
	if path == "" {
		return
	}
	if pid, err := ReadPid(path); err == nil && alive(pid) {
		p.logger.Printf("Adopting running process %d", pid)
		p.setForeign(pid)
	}
}

func (p *Process) doLog(r io.ReadCloser, prefix string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			p.logger.Print(prefix, strings.TrimRight(line, "\n"))
		}
		if err != nil {
			return
		}
	}
}

// shellLine prefixes simple commands with exec, so that the PID of the
// shell is the PID of the program.  Compound commands keep the shell; the
// process group still covers them.
func shellLine(line string) string {
	if strings.ContainsAny(line, ";&|<>()`\n") {
		return line
	}
	return "exec " + line
}

// command builds a shell invocation of line.
func (p *Process) command(ctx context.Context, line string) *exec.Cmd {
	var c *exec.Cmd
	if ctx == nil {
		c = exec.Command("/bin/sh", "-c", shellLine(line))
	} else {
		c = exec.CommandContext(ctx, "/bin/sh", "-c", shellLine(line))
	}
	c.Dir = p.dir
	if len(p.env) != 0 {
		c.Env = append(os.Environ(), p.env...)
	}
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return c
}

// logWriter logs each line written to it.
type logWriter struct {
	logger *log.Logger
	prefix string
}

func (w *logWriter) Write(b []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		w.logger.Print(w.prefix, line)
	}
	return len(b), nil
}

func (p *Process) capture(c *exec.Cmd) {
	if stdout, e := c.StdoutPipe(); e != nil {
		p.logger.Printf("Failed to capture stdout: %v", e)
	} else {
		go p.doLog(stdout, "stdout> ")
	}
	if stderr, e := c.StderrPipe(); e != nil {
		p.logger.Printf("Failed to capture stderr: %v", e)
	} else {
		go p.doLog(stderr, "stderr> ")
	}
}

// spawn launches line and returns its PID.
func (p *Process) spawn(line string) (*exec.Cmd, int, error) {
	c := p.command(nil, line)
	p.capture(c)
	if err := c.Start(); err != nil {
		return nil, 0, fmt.Errorf("spawn %q: %w", line, err)
	}
	return c, c.Process.Pid, nil
}

func (p *Process) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.aliveLocked() {
		return ErrAlreadyRunning
	}
	p.stopping = false

	c, pid, err := p.spawn(p.startCmd)
	if err != nil {
		return err
	}

	if p.pidFile != "" {
		// The start command daemonizes; let it finish, then find the
		// real PID.
		waitBounded(c, p.stopTime)
		fpid, err := p.waitPidFile()
		if err != nil {
			return err
		}
		p.setForeign(fpid)
	} else {
		p.cmd = c
		p.pid = pid
		p.child = true
		p.exited = false
		p.done = make(chan struct{})
		go p.doWait(c, pid, p.done)
	}

	if p.pidPath != "" {
		if err := WritePid(p.pidPath, p.pid); err != nil {
			p.logger.Printf("Failed writing PID file: %v", err)
		}
	}
	p.logger.Printf("Spawned %q as PID %d", p.startCmd, p.pid)
	return nil
}

func waitBounded(c *exec.Cmd, d time.Duration) {
	ch := make(chan struct{})
	go func() {
		c.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(d):
	}
}

func (p *Process) waitPidFile() (int, error) {
	deadline := time.Now().Add(p.stopTime)
	for {
		pid, err := ReadPid(p.pidFile)
		if err == nil && alive(pid) {
			return pid, nil
		}
		if time.Now().After(deadline) {
			if err == nil {
				err = ErrNotRunning
			}
			return 0, fmt.Errorf("pid file %s: %w", p.pidFile, err)
		}
		time.Sleep(foreignPollInterval)
	}
}

// setForeign records a PID that is not our child.  Call with lock held.
func (p *Process) setForeign(pid int) {
	p.cmd = nil
	p.pid = pid
	p.child = false
	p.exited = false
	p.done = make(chan struct{})
	p.quit = make(chan struct{})
	go p.probe(pid, p.done, p.quit)
}

// probe emulates exit notification for a PID we cannot wait on.
func (p *Process) probe(pid int, done, quit chan struct{}) {
	t := time.NewTicker(foreignPollInterval)
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			if alive(pid) {
				continue
			}
			p.exitedAs(pid, done, nil)
			return
		}
	}
}

func (p *Process) doWait(c *exec.Cmd, pid int, done chan struct{}) {
	e := c.Wait()
	p.exitedAs(pid, done, e)
}

func (p *Process) exitedAs(pid int, done chan struct{}, e error) {
	p.lock.Lock()
	current := p.pid == pid
	expected := p.stopping || !current
	if current {
		p.exited = true
	}
	post := p.post
	p.lock.Unlock()
	close(done)

	if !expected {
		if e != nil {
			p.logger.Printf("Process %d exited: %v", pid, e)
		} else {
			p.logger.Printf("Process %d exited", pid)
		}
	}
	post(Event{
		Kind:     EventProcessExit,
		Pid:      pid,
		Expected: expected,
		Err:      e,
		Time:     time.Now(),
	})
}

func (p *Process) runCmdWithTimeout(pfx string, line string, d time.Duration) error {
	if d == 0 {
		d = DefaultStopTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	c := p.command(ctx, line)
	if p.pid > 0 {
		c.Env = append(c.Environ(), fmt.Sprintf("PID=%d", p.pid))
	}
	c.Stdout = &logWriter{logger: p.logger, prefix: pfx + " stdout> "}
	c.Stderr = &logWriter{logger: p.logger, prefix: pfx + " stderr> "}
	c.WaitDelay = time.Second
	if e := c.Start(); e != nil {
		return e
	}
	e := c.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		p.logger.Printf("Timeout waiting for %s command", pfx)
		return ErrCommandTimedOut
	}
	return e
}

// signalLocked delivers sig to the process group of a child, or to the
// PID of a foreign process.
func (p *Process) signalLocked(sig syscall.Signal) error {
	if p.pid <= 0 {
		return ErrNoPid
	}
	target := p.pid
	if p.child {
		target = -p.pid
	}
	err := unix.Kill(target, sig)
	if errors.Is(err, unix.ESRCH) {
		return ErrNotRunning
	}
	return err
}

func (p *Process) Signal(sig syscall.Signal) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.signalLocked(sig)
}

func (p *Process) aliveLocked() bool {
	if p.pid <= 0 || (p.child && p.exited) {
		return false
	}
	return alive(p.pid)
}

func (p *Process) Alive() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.aliveLocked()
}

func (p *Process) Pid() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.pid
}

func (p *Process) waitGone(done chan struct{}, d time.Duration) bool {
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func (p *Process) Stop() error {
	p.lock.Lock()
	if !p.aliveLocked() {
		p.clearLocked()
		p.lock.Unlock()
		return nil
	}
	p.stopping = true
	done := p.done
	var err error
	if p.stopCmd != "" {
		if e := p.runCmdWithTimeout("stop", p.stopCmd, p.stopTime); e != nil {
			p.logger.Printf("Failed stop cmd: %v", e)
			err = e
		}
	} else if e := p.signalLocked(unix.SIGTERM); e != nil && e != ErrNotRunning {
		p.logger.Printf("Failed sending SIGTERM: %v", e)
		err = e
	}
	p.lock.Unlock()

	if !p.waitGone(done, p.stopTime) {
		p.logger.Printf("Graceful shutdown timed out")
		p.lock.Lock()
		if e := p.signalLocked(unix.SIGKILL); e != nil && e != ErrNotRunning {
			p.logger.Printf("Failed killing: %v", e)
		}
		p.lock.Unlock()
		if !p.waitGone(done, killGrace) {
			p.lock.Lock()
			p.stopping = false
			p.lock.Unlock()
			return fmt.Errorf("process %s did not exit", p.name)
		}
	}

	p.lock.Lock()
	p.clearLocked()
	p.lock.Unlock()
	return err
}

// clearLocked forgets the current process.
func (p *Process) clearLocked() {
	if p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
	p.cmd = nil
	p.pid = 0
	p.child = false
	p.stopping = false
	if p.pidPath != "" {
		os.Remove(p.pidPath)
	}
}

func (p *Process) Restart() error {
	if p.restartCmd == "" {
		if err := p.Stop(); err != nil {
			p.logger.Printf("Stop during restart: %v", err)
		}
		return p.Start()
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	p.stopping = true
	err := p.runCmdWithTimeout("restart", p.restartCmd, p.stopTime)
	p.stopping = false
	if err != nil {
		return err
	}
	if p.pidFile != "" {
		if pid, e := p.waitPidFile(); e == nil && pid != p.pid {
			if p.quit != nil {
				close(p.quit)
				p.quit = nil
			}
			p.setForeign(pid)
		}
	}
	return nil
}

func (p *Process) Unregister() {
	p.lock.Lock()
	if p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
	p.post = func(Event) {}
	p.lock.Unlock()
}
