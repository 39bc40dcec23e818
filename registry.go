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
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPidDir is where PID files go unless configured otherwise.
const DefaultPidDir = "/var/run/warden"

// Control verbs.
const (
	VerbStart     = "start"
	VerbRestart   = "restart"
	VerbStop      = "stop"
	VerbMonitor   = "monitor"
	VerbUnmonitor = "unmonitor"
	VerbRemove    = "remove"
)

var verbs = map[string]func(*Watch) error{
	VerbStart:     (*Watch).Monitor,
	VerbMonitor:   (*Watch).Monitor,
	VerbRestart:   (*Watch).Restart,
	VerbStop:      (*Watch).Stop,
	VerbUnmonitor: (*Watch).Unmonitor,
}

// Verbs returns the recognized control verbs, sorted.
func Verbs() []string {
	rv := []string{VerbRemove}
	for v := range verbs {
		rv = append(rv, v)
	}
	sort.Strings(rv)
	return rv
}

// Loader turns declarations into calls to Registry.Watch.
type Loader interface {
	LoadFile(r *Registry, path string) error
	LoadString(r *Registry, src string) error
}

// ControlSurface carries remote commands to the registry.  It is brought
// up by Start and closed by Shutdown.
type ControlSurface interface {
	Start() error
	Close() error
}

// Registry is the supervisory core.  It owns the watch and group tables
// and drives the Timer and EventHandler.
//
// The tables are guarded by one lock.  Declaration and removal take it
// exclusively.  Control resolves names under it, but applies verbs after
// releasing it; a watch removed in between refuses them with ErrRemoved.
// Each watch serializes its own lifecycle work.
type Registry struct {
	name    string
	watches map[string]*Watch
	order   []*Watch
	groups  map[string][]*Watch
	pending []*Watch
	before  []*Watch
	swapped []replaced
	loading bool
	running bool
	pidDir  string
	tick    time.Duration
	factory ControllerFactory
	loader  Loader
	surface ControlSurface
	exit    func(int)
	timer   *Timer
	events  *EventHandler
	sinks   *sinkQueue
	mx      sync.RWMutex
	loadMx  sync.Mutex
	closeMx sync.Mutex

	serial     int64
	listSerial int64
	createTime time.Time
	updateTime time.Time
	cvs        map[*sync.Cond]bool
	smx        sync.Mutex

	logger *log.Logger
	log    *Log
	mlog   *MultiLogger
}

// replaced is a watch superseded during a load.  It stays out of the
// tables until the load either commits or fails.
type replaced struct {
	w         *Watch
	monitored bool
}

// RegistryInfo is top-level information about a Registry.
type RegistryInfo struct {
	Name       string    `json:"name"`
	Serial     int64     `json:"serial,string"`
	Running    bool      `json:"running"`
	PidDir     string    `json:"pid_file_directory"`
	Watches    int       `json:"watches"`
	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

// NewRegistry returns an empty registry.
func NewRegistry(name string) *Registry {
	if name == "" {
		name = "warden"
	}
	// The serial starts at the current time in nanoseconds, so that
	// clients caching against it notice a daemon restart.
	r := &Registry{
		name:    name,
		pidDir:  DefaultPidDir,
		tick:    DefaultTick,
		factory: NewProcess,
		exit:    os.Exit,
		serial:  time.Now().UnixNano(),
		cvs:     make(map[*sync.Cond]bool),
	}
	r.listSerial = r.serial
	r.createTime = time.Now()
	r.updateTime = r.createTime
	r.mlog = NewMultiLogger("")
	r.log = NewLog(0)
	r.mlog.AddWriter(r.log, 0)
	r.logger = r.mlog.AddWriter(os.Stderr, log.LstdFlags)
	r.sinks = newSinkQueue(r.mlog.Logger())
	r.events = NewEventHandler(r.lookup)
	r.timer = NewTimer(r.tick, r.snapshot)
	r.resetTables()
	return r
}

func (r *Registry) resetTables() {
	r.watches = make(map[string]*Watch)
	r.groups = make(map[string][]*Watch)
	r.order = nil
	r.pending = nil
}

func (r *Registry) logf(format string, v ...interface{}) {
	r.mlog.Printf(format, v...)
}

// Name returns the name the registry was created with.
func (r *Registry) Name() string {
	return r.name
}

// SetLogger replaces the stderr logger.  The in-memory log is kept.
func (r *Registry) SetLogger(l *log.Logger) {
	if r.logger != nil {
		r.mlog.DelLogger(r.logger)
	}
	r.logger = l
	if l != nil {
		r.mlog.AddLogger(l)
	}
}

// Logger returns the registry logger.
func (r *Registry) Logger() *log.Logger {
	return r.mlog.Logger()
}

// SetLoader installs the declaration loader used by Load and RunningLoad.
func (r *Registry) SetLoader(l Loader) {
	r.mx.Lock()
	r.loader = l
	r.mx.Unlock()
}

// SetControlSurface installs the collaborator started by Start.
func (r *Registry) SetControlSurface(s ControlSurface) {
	r.mx.Lock()
	r.surface = s
	r.mx.Unlock()
}

// SetControllerFactory replaces NewProcess for watches declared later.
func (r *Registry) SetControllerFactory(f ControllerFactory) {
	r.mx.Lock()
	r.factory = f
	r.mx.Unlock()
}

// SetExit replaces os.Exit for Terminate.
func (r *Registry) SetExit(f func(int)) {
	r.mx.Lock()
	r.exit = f
	r.mx.Unlock()
}

// SetTick sets the Timer granularity.  It must be called before Start.
func (r *Registry) SetTick(d time.Duration) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.running {
		return ErrRunning
	}
	r.tick = d
	r.timer = NewTimer(d, r.snapshot)
	return nil
}

// AddSink registers a destination for transitions.
func (r *Registry) AddSink(s Sink) {
	r.sinks.add(s)
}

// SetPidDir sets the PID file directory.  It only affects watches
// declared afterwards, and cannot change once the engine has started.
func (r *Registry) SetPidDir(dir string) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.running {
		return ErrRunning
	}
	r.pidDir = dir
	return nil
}

// PidDir returns the PID file directory.
func (r *Registry) PidDir() string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.pidDir
}

// Running reports whether Start has been called.
func (r *Registry) Running() bool {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.running
}

// Events returns the event handler.
func (r *Registry) Events() *EventHandler {
	return r.events
}

// Init empties the tables.  It fails once any watch has been declared.
func (r *Registry) Init() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if len(r.watches) != 0 {
		return ErrInitAfterWatch
	}
	r.resetTables()
	return nil
}

// Reset unwatches everything and returns the registry to its initial
// state, leaving processes alone.
func (r *Registry) Reset() {
	r.mx.Lock()
	for _, w := range r.order {
		w.unwatch("Reset")
	}
	for _, x := range r.swapped {
		x.w.unwatch("Reset")
	}
	r.swapped = nil
	r.resetTables()
	r.running = false
	r.mx.Unlock()
	r.bumpList()
}

// Ping reports that the registry is responsive.
func (r *Registry) Ping() bool {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return true
}

// Watch declares a watch.  fn receives a configuration holding defaults,
// which is validated after fn returns.  If fn fails, nothing is declared.
//
// A name that is already declared is an error until the engine is
// running.  After that the old watch is unwatched and replaced.  Inside
// a load the old watch is only set aside, and comes back if the load
// fails.
func (r *Registry) Watch(fn func(*WatchConfig) error) (*Watch, error) {
	cfg := newWatchConfig()
	if fn != nil {
		if err := fn(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r.mx.Lock()
	if _, ok := r.groups[cfg.Name]; ok {
		r.mx.Unlock()
		return nil, &ConfigError{Name: cfg.Name, Err: ErrNameConflict}
	}
	if cfg.Group != "" {
		if _, ok := r.watches[cfg.Group]; ok {
			r.mx.Unlock()
			return nil, &ConfigError{Name: cfg.Group, Err: ErrNameConflict}
		}
	}
	if old, ok := r.watches[cfg.Name]; ok {
		if !r.running {
			r.mx.Unlock()
			return nil, &ConfigError{Name: cfg.Name, Err: ErrDuplicateName}
		}
		r.logf("Replacing watch %s", cfg.Name)
		if r.loading && !contains(r.pending, old) {
			r.detachLocked(old)
		} else {
			r.unwatchLocked(old, "Replaced by new declaration")
		}
	}

	w := newWatch(cfg, r)
	w.mlog.AddWriter(r.mlog, 0)
	w.ctrl = r.factory(cfg, ControllerEnv{
		PidDir: r.pidDir,
		Post:   w.post,
		Logger: w.Logger(),
	})
	r.watches[cfg.Name] = w
	r.order = append(r.order, w)
	if cfg.Group != "" {
		r.groups[cfg.Group] = append(r.groups[cfg.Group], w)
	}
	if r.loading {
		r.pending = append(r.pending, w)
	}
	r.mx.Unlock()

	w.logf("Declared")
	r.bumpList()
	return w, nil
}

// Unwatch unmonitors w and removes it from the tables.  The process is
// left running.
func (r *Registry) Unwatch(w *Watch) {
	r.mx.Lock()
	removed := r.unwatchLocked(w, "Unwatched")
	r.mx.Unlock()
	if removed {
		r.bumpList()
	}
}

func (r *Registry) unwatchLocked(w *Watch, reason string) bool {
	if r.watches[w.Name()] != w {
		return false
	}
	w.unwatch(reason)
	r.dropLocked(w)
	r.logf("Removed watch %s (%s)", w.Name(), reason)
	return true
}

// detachLocked takes w out of the tables without retiring it.
func (r *Registry) detachLocked(w *Watch) {
	mon := w.detach("Replaced by new declaration")
	r.dropLocked(w)
	r.swapped = append(r.swapped, replaced{w: w, monitored: mon})
}

func (r *Registry) dropLocked(w *Watch) {
	delete(r.watches, w.Name())
	r.order = remove(r.order, w)
	if g := w.Group(); g != "" {
		if m := remove(r.groups[g], w); len(m) != 0 {
			r.groups[g] = m
		} else {
			delete(r.groups, g)
		}
	}
	r.pending = remove(r.pending, w)
}

// restoreLocked puts back watches set aside by a failed load, in the
// order they held before it.
func (r *Registry) restoreLocked(ws []replaced, before []*Watch) {
	if len(ws) == 0 {
		return
	}
	for _, x := range ws {
		r.watches[x.w.Name()] = x.w
		r.logf("Restored watch %s", x.w.Name())
	}
	seen := make(map[*Watch]bool)
	order := make([]*Watch, 0, len(r.watches))
	for _, w := range before {
		if r.watches[w.Name()] == w {
			order = append(order, w)
			seen[w] = true
		}
	}
	for _, w := range r.order {
		if !seen[w] {
			order = append(order, w)
		}
	}
	r.order = order
	r.groups = make(map[string][]*Watch)
	for _, w := range order {
		if g := w.Group(); g != "" {
			r.groups[g] = append(r.groups[g], w)
		}
	}
}

func contains(list []*Watch, w *Watch) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}

func remove(list []*Watch, w *Watch) []*Watch {
	for i, x := range list {
		if x == w {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// resolveLocked finds target among watches, then groups.
func (r *Registry) resolveLocked(target string) []*Watch {
	if w, ok := r.watches[target]; ok {
		return []*Watch{w}
	}
	if g, ok := r.groups[target]; ok {
		return append([]*Watch{}, g...)
	}
	return nil
}

// Control applies verb to the named watch, or to each member of the named
// group in declaration order.  The verb is checked before the target is
// resolved.  It returns the names of the watches acted upon.
func (r *Registry) Control(target string, verb string) ([]string, error) {
	op, ok := verbs[verb]
	if !ok && verb != VerbRemove {
		return nil, &InvalidCommandError{Command: verb}
	}

	if verb == VerbRemove {
		return r.removeTarget(target)
	}

	r.mx.RLock()
	ws := r.resolveLocked(target)
	r.mx.RUnlock()
	if ws == nil {
		return nil, &UnknownWatchError{Name: target}
	}

	// Verbs may block on the process, so they run without the table lock.
	var names []string
	var errs []error
	for _, w := range ws {
		names = append(names, w.Name())
		if err := op(w); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	return names, errors.Join(errs...)
}

func (r *Registry) removeTarget(target string) ([]string, error) {
	r.mx.Lock()
	ws := r.resolveLocked(target)
	if ws == nil {
		r.mx.Unlock()
		return nil, &UnknownWatchError{Name: target}
	}
	names := make([]string, 0, len(ws))
	for _, w := range ws {
		names = append(names, w.Name())
		r.unwatchLocked(w, "Removed by command")
	}
	r.mx.Unlock()
	r.bumpList()
	return names, nil
}

// Status returns one "name: state" line per watch, in declaration order.
func (r *Registry) Status() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	lines := make([]string, 0, len(r.order))
	for _, w := range r.order {
		lines = append(lines, fmt.Sprintf("%s: %s", w.Name(), w.State()))
	}
	return lines
}

// Find returns the named watch.
func (r *Registry) Find(name string) (*Watch, error) {
	if w := r.lookup(name); w != nil {
		return w, nil
	}
	return nil, &UnknownWatchError{Name: name}
}

func (r *Registry) lookup(name string) *Watch {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.watches[name]
}

// Group returns the members of the named group, in declaration order.
func (r *Registry) Group(name string) []*Watch {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return append([]*Watch{}, r.groups[name]...)
}

// Groups returns the group names, sorted.
func (r *Registry) Groups() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	rv := make([]string, 0, len(r.groups))
	for g := range r.groups {
		rv = append(rv, g)
	}
	sort.Strings(rv)
	return rv
}

func (r *Registry) snapshot() []*Watch {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return append([]*Watch{}, r.order...)
}

// Watches returns all watches in declaration order, with the serial of
// the list.
func (r *Registry) Watches() ([]*Watch, int64) {
	ws := r.snapshot()
	r.smx.Lock()
	sn := r.listSerial
	r.smx.Unlock()
	return ws, sn
}

// Pending returns the watches declared so far by the load in progress.
func (r *Registry) Pending() []*Watch {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return append([]*Watch{}, r.pending...)
}

func (r *Registry) beginLoad() {
	r.loadMx.Lock()
	r.mx.Lock()
	r.loading = true
	r.pending = nil
	r.swapped = nil
	r.before = append([]*Watch{}, r.order...)
	r.mx.Unlock()
}

// endLoad closes the load extent and returns the watches it declared.
// If the load failed those are removed again, and the watches they
// replaced are put back and supervised as before.  Otherwise the
// replaced watches are retired.
func (r *Registry) endLoad(failed bool) []*Watch {
	defer r.loadMx.Unlock()

	r.mx.Lock()
	p, swapped, before := r.pending, r.swapped, r.before
	r.pending, r.swapped, r.before = nil, nil, nil
	r.loading = false
	if failed {
		for _, w := range p {
			r.unwatchLocked(w, "Load failed")
		}
		r.restoreLocked(swapped, before)
	}
	r.mx.Unlock()

	for _, x := range swapped {
		if !failed {
			x.w.unwatch("Replaced by new declaration")
			r.logf("Removed watch %s (Replaced by new declaration)", x.w.Name())
			continue
		}
		if x.monitored {
			if err := x.w.Monitor(); err != nil {
				x.w.logf("Failed to monitor: %v", err)
			}
		}
	}
	if failed || len(swapped) != 0 {
		r.bumpList()
	}
	return p
}

func (r *Registry) getLoader() (Loader, error) {
	r.mx.RLock()
	defer r.mx.RUnlock()
	if r.loader == nil {
		return nil, ErrNoLoader
	}
	return r.loader, nil
}

// RunningLoad evaluates declarations against the live registry, monitors
// the new watches that autostart, and returns the watches declared.  If
// the declarations fail, the watches they added are removed again.
func (r *Registry) RunningLoad(src string) ([]*Watch, error) {
	l, err := r.getLoader()
	if err != nil {
		return nil, err
	}
	r.beginLoad()
	err = l.LoadString(r, src)
	ws := r.endLoad(err != nil)
	if err != nil {
		return nil, err
	}
	r.autostart(ws)
	return ws, nil
}

// Load loads every file matching pattern, in lexical order.  Should any
// file fail, every watch added by this call is removed again.  Once the
// engine is running, new watches that autostart are monitored.
func (r *Registry) Load(pattern string) ([]*Watch, error) {
	l, err := r.getLoader()
	if err != nil {
		return nil, err
	}
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", pattern, ErrNoMatch)
	}
	sort.Strings(files)

	r.beginLoad()
	for _, f := range files {
		r.logf("Loading %s", f)
		if err = l.LoadFile(r, f); err != nil {
			err = fmt.Errorf("%s: %w", f, err)
			break
		}
	}
	ws := r.endLoad(err != nil)
	if err != nil {
		return nil, err
	}
	if r.Running() {
		r.autostart(ws)
	}
	return ws, nil
}

func (r *Registry) autostart(ws []*Watch) {
	for _, w := range ws {
		if !w.Autostart() {
			continue
		}
		if err := w.Monitor(); err != nil {
			w.logf("Failed to monitor: %v", err)
		}
	}
}

// Setup creates the PID file directory if needed.
func (r *Registry) Setup() error {
	dir := r.PidDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: cannot create %s: permission denied",
				ErrPidDirectory, dir)
		}
		return fmt.Errorf("%w: %v", ErrPidDirectory, err)
	}
	return nil
}

// Validate checks that the PID file directory is a writable directory.
func (r *Registry) Validate() error {
	dir := r.PidDir()
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPidDirectory, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrPidDirectory, dir)
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("%w: %s is not writable", ErrPidDirectory, dir)
	}
	return nil
}

// Start brings up the engine and blocks until ctx is done or Shutdown is
// called.  Nothing is monitored if the PID file directory is unusable.
func (r *Registry) Start(ctx context.Context) error {
	if r.Running() {
		return ErrRunning
	}
	if err := r.Setup(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}

	r.mx.Lock()
	surface := r.surface
	timer := r.timer
	r.mx.Unlock()

	if surface != nil {
		if err := surface.Start(); err != nil {
			return err
		}
	}
	r.events.Start()

	r.logf("*** Warden starting: %s ***", r.name)
	r.autostart(r.snapshot())

	r.mx.Lock()
	r.running = true
	r.mx.Unlock()
	r.bumpList()
	return timer.Run(ctx)
}

// Terminate exits the process immediately with status 0.
func (r *Registry) Terminate() {
	r.logf("*** Warden terminating: %s ***", r.name)
	r.mx.RLock()
	exit := r.exit
	r.mx.RUnlock()
	exit(0)
}

// Shutdown stops every watch, then closes the registry.
func (r *Registry) Shutdown() {
	r.logf("*** Warden shutting down: %s ***", r.name)
	for _, w := range r.snapshot() {
		if err := w.Stop(); err != nil && !errors.Is(err, ErrRemoved) {
			w.logf("Failed to stop: %v", err)
		}
	}
	r.Close()
}

// Close stops the timer, event delivery and the control surface, then
// flushes the sinks.  Watches and their processes are left as they are.
// Start returns once the timer stops.  Close may be called more than
// once; later calls wait for the first to finish.
func (r *Registry) Close() {
	r.closeMx.Lock()
	defer r.closeMx.Unlock()

	r.mx.Lock()
	surface := r.surface
	timer := r.timer
	r.running = false
	r.mx.Unlock()

	timer.Stop()
	r.events.Stop()
	if surface != nil {
		if err := surface.Close(); err != nil {
			r.logf("Failed to close control surface: %v", err)
		}
	}
	r.sinks.close()
}

// Info returns top-level information about the registry.
func (r *Registry) Info() *RegistryInfo {
	r.mx.RLock()
	i := &RegistryInfo{
		Name:    r.name,
		Running: r.running,
		PidDir:  r.pidDir,
		Watches: len(r.watches),
	}
	r.mx.RUnlock()
	r.smx.Lock()
	i.Serial = r.serial
	i.CreateTime = r.createTime
	i.UpdateTime = r.updateTime
	r.smx.Unlock()
	return i
}

func (r *Registry) wakeUp() {
	// Call with smx held, or waiters may miss the new serial.
	for cv := range r.cvs {
		cv.Broadcast()
	}
}

// publish is called by watches for each transition.
func (r *Registry) publish(t Transition) {
	r.smx.Lock()
	r.serial++
	r.updateTime = t.Time
	r.wakeUp()
	r.smx.Unlock()
	r.sinks.push(t)
}

func (r *Registry) bumpList() {
	r.smx.Lock()
	r.serial++
	r.listSerial = r.serial
	r.updateTime = time.Now()
	r.wakeUp()
	r.smx.Unlock()
}

// watchSerial waits for *src to differ from old, or for expire to pass,
// and returns the current value.  An expire of 0 polls.
func (r *Registry) watchSerial(old int64, src *int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&r.smx)
	var timer *time.Timer
	var rv int64

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			r.smx.Lock()
			expired = true
			cv.Broadcast()
			r.smx.Unlock()
		})
	} else {
		expired = true
	}

	r.smx.Lock()
	r.cvs[cv] = true
	for {
		rv = *src
		if rv != old || expired {
			break
		}
		cv.Wait()
	}
	delete(r.cvs, cv)
	r.smx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// Serial returns the global serial number, which changes on every
// transition and every change to the watch list.
func (r *Registry) Serial() int64 {
	r.smx.Lock()
	defer r.smx.Unlock()
	return r.serial
}

// WatchSerial waits for the global serial number to change.
func (r *Registry) WatchSerial(old int64, expire time.Duration) int64 {
	return r.watchSerial(old, &r.serial, expire)
}

// WatchList waits for the list of watches to change.
func (r *Registry) WatchList(old int64, expire time.Duration) int64 {
	return r.watchSerial(old, &r.listSerial, expire)
}

// Log returns the registry's log ring.
func (r *Registry) Log() *Log {
	return r.log
}

// GetLog returns the log records, unless lastid is still current.
func (r *Registry) GetLog(lastid int64) ([]LogRecord, int64) {
	return r.log.GetRecords(lastid)
}

// WatchLog waits for log records newer than old.
func (r *Registry) WatchLog(old int64, expire time.Duration) int64 {
	return r.log.Watch(old, expire)
}
