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
	"log"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// MaxTransitions is how many transitions each watch remembers.
const MaxTransitions = 100

// attachment is a condition bound to one trigger of one watch, with the
// evaluation bookkeeping the engine needs.
type attachment struct {
	trigger Trigger
	cond    Condition
	next    time.Time
	last    bool
}

// Watch is one supervised process.  All lifecycle work for a watch is
// serialized by its lock: control verbs run synchronously under it, and
// poll and event requests are handed to a per-watch goroutine that takes
// the same lock.  Different watches never share a lock.
//
// States move as follows (unset is the zero state):
//
//	unset/unmonitored --monitor--> start --up--> up
//	up --restart--> restart --up--> up
//	up --start (process exited)--> start
//	up --stop--> stop --(process gone)--> unmonitored
//	any --unmonitor/stop verb--> unmonitored
type Watch struct {
	cfg  *WatchConfig
	reg  *Registry
	ctrl Controller
	mlog *MultiLogger
	wlog *Log

	lock     sync.Mutex
	state    State
	failed   bool
	spawnErr error
	reason   string
	stamp    time.Time
	starts   []time.Time
	conds    []*attachment
	history  []Transition
	removed  bool

	mbox    sync.Mutex
	events  []Event
	pollDue bool
	wake    chan struct{}
	quit    chan struct{}
}

func newWatch(cfg *WatchConfig, reg *Registry) *Watch {
	w := &Watch{
		cfg:    cfg,
		reg:    reg,
		mlog:   NewMultiLogger("[" + cfg.Name + "] "),
		wlog:   NewLog(0),
		state:  StateUnset,
		reason: "Declared",
		stamp:  time.Now(),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	w.mlog.AddWriter(w.wlog, 0)
	for _, t := range Triggers {
		for _, c := range cfg.Conditions[t] {
			w.conds = append(w.conds, &attachment{trigger: t, cond: c})
		}
	}
	go w.run()
	return w
}

// Name returns the watch name, which is unique among watches and groups.
func (w *Watch) Name() string {
	return w.cfg.Name
}

// Group returns the group name, or the empty string.
func (w *Watch) Group() string {
	return w.cfg.Group
}

// Autostart reports whether loading the watch monitors it.
func (w *Watch) Autostart() bool {
	return w.cfg.Autostart
}

// Config returns the validated configuration.  It must not be modified.
func (w *Watch) Config() *WatchConfig {
	return w.cfg
}

// Controller returns the process controller bound to the watch.
func (w *Watch) Controller() Controller {
	return w.ctrl
}

// State returns the current lifecycle state.
func (w *Watch) State() State {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.state
}

// Failed reports whether the watch was given up on after crashing too
// often.  It is cleared by monitoring again.
func (w *Watch) Failed() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.failed
}

// Status returns the most recent reason for a state change, and when it
// happened.
func (w *Watch) Status() (string, time.Time) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.reason, w.stamp
}

// Pid returns the PID of the supervised process, or 0.
func (w *Watch) Pid() int {
	return w.ctrl.Pid()
}

// Alive reports whether the supervised process is running.
func (w *Watch) Alive() bool {
	return w.ctrl.Alive()
}

// Log returns the ring of log lines emitted for this watch.
func (w *Watch) Log() *Log {
	return w.wlog
}

// Logger returns the logger for this watch.
func (w *Watch) Logger() *log.Logger {
	return w.mlog.Logger()
}

// Transitions returns the recorded state changes, oldest first.
func (w *Watch) Transitions() []Transition {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]Transition{}, w.history...)
}

// WatchInfo is a snapshot of a watch, suitable for encoding.
type WatchInfo struct {
	Name      string    `json:"name"`
	Group     string    `json:"group,omitempty"`
	State     string    `json:"state"`
	Pid       int       `json:"pid"`
	Failed    bool      `json:"failed"`
	Autostart bool      `json:"autostart"`
	Reason    string    `json:"reason"`
	Stamp     time.Time `json:"stamp"`
}

// Info returns a snapshot of the watch.
func (w *Watch) Info() *WatchInfo {
	w.lock.Lock()
	defer w.lock.Unlock()
	return &WatchInfo{
		Name:      w.cfg.Name,
		Group:     w.cfg.Group,
		State:     w.state.String(),
		Pid:       w.ctrl.Pid(),
		Failed:    w.failed,
		Autostart: w.cfg.Autostart,
		Reason:    w.reason,
		Stamp:     w.stamp,
	}
}

func (w *Watch) logf(format string, v ...interface{}) {
	w.mlog.Printf(format, v...)
}

// Monitor places the watch under supervision.  It is a no-op when the
// watch is already being supervised.  A process that is already running
// is adopted without spawning another.
func (w *Watch) Monitor() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.removed {
		return ErrRemoved
	}
	switch w.state {
	case StateStart, StateUp, StateRestart:
		return nil
	}
	w.failed = false
	w.starts = nil
	w.arm()
	if w.ctrl.Alive() {
		w.move(StateUp, "Monitored running process")
		return nil
	}
	w.move(StateStart, "Monitored")
	return nil
}

// Unmonitor takes the watch out of supervision, leaving the process alone.
func (w *Watch) Unmonitor() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.removed {
		return ErrRemoved
	}
	w.unmonitor("Unmonitored")
	return nil
}

// Restart moves a supervised watch into restart.  An unsupervised watch
// is monitored instead.
func (w *Watch) Restart() error {
	w.lock.Lock()
	if w.removed {
		w.lock.Unlock()
		return ErrRemoved
	}
	if !w.state.Monitored() || w.state == StateStop {
		w.lock.Unlock()
		return w.Monitor()
	}
	defer w.lock.Unlock()
	w.failed = false
	w.starts = nil
	w.move(StateRestart, "Restart requested")
	return nil
}

// Stop unmonitors the watch and then stops the process.
func (w *Watch) Stop() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.removed {
		return ErrRemoved
	}
	w.unmonitor("Stop requested")
	if err := w.ctrl.Stop(); err != nil {
		w.logf("Failed to stop: %v", err)
		return err
	}
	return nil
}

// Signal delivers sig to the supervised process.
func (w *Watch) Signal(sig syscall.Signal) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.ctrl.Signal(sig)
}

// unwatch is called by the registry when the declaration goes away.
func (w *Watch) unwatch(reason string) {
	w.lock.Lock()
	w.unmonitor(reason)
	w.removed = true
	w.ctrl.Unregister()
	w.lock.Unlock()

	w.mbox.Lock()
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
	w.mbox.Unlock()
}

// detach unmonitors the watch for a replacement that may yet be undone,
// and reports whether it was being supervised.
func (w *Watch) detach(reason string) bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	active := false
	switch w.state {
	case StateStart, StateUp, StateRestart:
		active = true
	}
	w.unmonitor(reason)
	return active
}

func (w *Watch) unmonitor(reason string) {
	w.disarm()
	if w.state.Monitored() {
		w.move(StateUnmonitored, reason)
	}
}

// record notes a transition and hands it to the registry.
func (w *Watch) record(to State, reason string, fatal bool) {
	t := Transition{
		ID:     uuid.NewString(),
		Watch:  w.cfg.Name,
		From:   w.state,
		To:     to,
		Reason: reason,
		Fatal:  fatal,
		Time:   time.Now(),
	}
	w.history = append(w.history, t)
	if len(w.history) > MaxTransitions {
		w.history = w.history[len(w.history)-MaxTransitions:]
	}
	w.state = to
	w.reason = reason
	w.stamp = t.Time
	if fatal {
		w.logf("%s -> %s: %s (fatal)", t.From, t.To, reason)
	} else {
		w.logf("%s -> %s: %s", t.From, t.To, reason)
	}
	if w.reg != nil {
		w.reg.publish(t)
	}
}

// allowStart applies the crash-loop guard to an automatic start.
func (w *Watch) allowStart(now time.Time) bool {
	if w.cfg.MaxRestarts <= 0 {
		return true
	}
	cutoff := now.Add(-w.cfg.RestartWindow)
	keep := w.starts[:0]
	for _, t := range w.starts {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	w.starts = keep
	return len(w.starts) < w.cfg.MaxRestarts
}

func (w *Watch) giveUp() {
	w.disarm()
	w.failed = true
	w.record(StateUnmonitored, fmt.Sprintf("%v: %d starts within %v",
		ErrCrashLoop, len(w.starts), w.cfg.RestartWindow), true)
	if err := w.ctrl.Stop(); err != nil {
		w.logf("Failed to stop: %v", err)
	}
}

// move performs the transition to state s and the action that goes with
// it.  Call with the lock held.
func (w *Watch) move(s State, reason string) {
	now := time.Now()
	switch s {
	case StateStart:
		w.starts = append(w.starts, now)
		w.record(StateStart, reason, false)
		w.reschedule(now)
		w.spawnErr = w.ctrl.Start()
		if w.spawnErr == ErrAlreadyRunning {
			w.spawnErr = nil
		}
		if w.spawnErr != nil {
			w.logf("Failed to start: %v", w.spawnErr)
			w.reason = "Failed to start: " + w.spawnErr.Error()
		}

	case StateRestart:
		w.starts = append(w.starts, now)
		w.record(StateRestart, reason, false)
		w.reschedule(now)
		w.spawnErr = w.ctrl.Restart()
		if w.spawnErr != nil {
			w.logf("Failed to restart: %v", w.spawnErr)
			w.reason = "Failed to restart: " + w.spawnErr.Error()
		}

	case StateStop:
		w.record(StateStop, reason, false)
		if err := w.ctrl.Stop(); err != nil {
			w.logf("Failed to stop: %v", err)
		}
		if !w.ctrl.Alive() {
			w.disarm()
			w.record(StateUnmonitored, "Process stopped", false)
		}

	case StateUp:
		w.record(StateUp, reason, false)
		w.reschedule(now)

	case StateUnmonitored:
		w.record(StateUnmonitored, reason, false)
	}
}

// autoMove is move for transitions the watch decides on itself.  Those
// that spawn are subject to the crash-loop guard.
func (w *Watch) autoMove(s State, reason string) {
	if s == StateStart || s == StateRestart {
		if !w.allowStart(time.Now()) {
			w.giveUp()
			return
		}
	}
	w.move(s, reason)
}

// reschedule resets the poll bookkeeping of the conditions active in the
// new state.  Each is first evaluated one interval from now.
func (w *Watch) reschedule(now time.Time) {
	for _, a := range w.conds {
		a.last = false
		if pc, ok := a.cond.(PollCondition); ok {
			a.next = now.Add(w.interval(pc))
		}
	}
}

func (w *Watch) interval(pc PollCondition) time.Duration {
	if d := pc.Interval(); d > 0 {
		return d
	}
	return w.cfg.Interval
}

func (w *Watch) arm() {
	for _, a := range w.conds {
		if ec, ok := a.cond.(EventCondition); ok {
			if err := ec.Arm(w, w.post); err != nil {
				w.logf("Failed to arm %s: %v", a.cond.Kind(), err)
			}
		}
	}
}

func (w *Watch) disarm() {
	for _, a := range w.conds {
		if ec, ok := a.cond.(EventCondition); ok {
			ec.Disarm()
		}
	}
}

// post routes an event through the registry's event handler, or straight
// to the watch when there is no registry.
func (w *Watch) post(ev Event) {
	ev.Watch = w.cfg.Name
	if w.reg != nil {
		w.reg.events.Post(ev)
		return
	}
	w.deliver(ev)
}

// deliver queues an event for the watch goroutine.  It never blocks.
func (w *Watch) deliver(ev Event) {
	w.mbox.Lock()
	w.events = append(w.events, ev)
	w.mbox.Unlock()
	w.kick()
}

// requestPoll asks the watch goroutine to evaluate poll conditions.
// Requests made while one is outstanding are coalesced.
func (w *Watch) requestPoll() {
	w.mbox.Lock()
	w.pollDue = true
	w.mbox.Unlock()
	w.kick()
}

func (w *Watch) kick() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watch) run() {
	for {
		select {
		case <-w.quit:
			return
		case <-w.wake:
		}
		w.mbox.Lock()
		events := w.events
		poll := w.pollDue
		w.events = nil
		w.pollDue = false
		w.mbox.Unlock()

		for _, ev := range events {
			w.handleEvent(ev)
		}
		if poll {
			w.poll(time.Now())
		}
	}
}

// handleEvent applies an asynchronous event.  Matching event conditions
// fire their trigger on their own, without regard to poll conditions.
func (w *Watch) handleEvent(ev Event) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.removed || !w.state.Monitored() {
		return
	}
	if ev.Kind == EventProcessExit && !ev.Expected {
		switch w.state {
		case StateStart, StateRestart:
			// Died before confirmation.
			if w.cfg.Lifecycle {
				w.autoMove(StateStart, "Process exited while starting")
			}
			return
		case StateStop:
			w.disarm()
			w.record(StateUnmonitored, "Process stopped", false)
			return
		}
	}
	for _, a := range w.conds {
		if !a.trigger.ActiveIn(w.state) {
			continue
		}
		ec, ok := a.cond.(EventCondition)
		if !ok || !ec.Matches(ev) {
			continue
		}
		w.autoMove(a.trigger.Target(), describe(a.cond, ev))
		return
	}
}

func describe(c Condition, ev Event) string {
	switch ev.Kind {
	case EventProcessExit:
		if ev.Err != nil {
			return fmt.Sprintf("Process %d exited: %v", ev.Pid, ev.Err)
		}
		return fmt.Sprintf("Process %d exited", ev.Pid)
	case EventFileChange:
		return fmt.Sprintf("%s: %s changed", c.Kind(), ev.Path)
	}
	return c.Kind()
}

// poll evaluates the poll conditions that are active in the current state
// and due at now, and makes at most one transition.
func (w *Watch) poll(now time.Time) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.removed {
		return
	}
	switch w.state {
	case StateStop:
		if !w.ctrl.Alive() {
			w.disarm()
			w.record(StateUnmonitored, "Process stopped", false)
		}
		return
	case StateStart, StateRestart:
		if w.spawnErr != nil {
			w.autoMove(StateStart, "Retrying start")
			return
		}
	case StateUp:
	default:
		return
	}

	for _, t := range Triggers {
		if !t.ActiveIn(w.state) {
			continue
		}
		fire, kinds := w.evaluate(t, now)
		if fire {
			w.autoMove(t.Target(), kinds)
			return
		}
	}

	if (w.state == StateStart || w.state == StateRestart) && w.cfg.Lifecycle &&
		!w.ctrl.Alive() && !w.hasPoll(TriggerUp) {
		w.autoMove(StateStart, "Process not running")
	}
}

func (w *Watch) hasPoll(t Trigger) bool {
	for _, a := range w.conds {
		if _, ok := a.cond.(PollCondition); ok && a.trigger == t {
			return true
		}
	}
	return false
}

// evaluate reports whether trigger t fires.  Conditions that are not yet
// due contribute their previous result; the trigger fires only when at
// least one condition was evaluated now and all hold.  With no poll
// conditions, the up trigger is confirmed by the process being alive.
func (w *Watch) evaluate(t Trigger, now time.Time) (bool, string) {
	var kinds string
	polled := false
	have := false
	all := true
	for _, a := range w.conds {
		if a.trigger != t {
			continue
		}
		pc, ok := a.cond.(PollCondition)
		if !ok {
			continue
		}
		have = true
		if !now.Before(a.next) {
			a.last = pc.Test(w)
			a.next = now.Add(w.interval(pc))
			polled = true
		}
		if !a.last {
			all = false
		}
		if kinds != "" {
			kinds += ", "
		}
		kinds += pc.Kind()
	}
	if !have {
		if t == TriggerUp && w.spawnErr == nil && w.ctrl.Alive() {
			return true, "Process running"
		}
		return false, ""
	}
	return polled && all, kinds
}
