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

// Package ui implements the "warden top" full screen view.
package ui

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/warden"
	"github.com/gdamore/warden/rest"
	"github.com/gdamore/warden/warden/util"
)

type App struct {
	app       *views.Application
	view      views.View
	panel     views.Widget
	info      *InfoPanel
	help      *HelpPanel
	log       *LogPanel
	main      *MainPanel
	auth      *AuthPanel
	client    *rest.Client
	logger    *log.Logger
	err       error
	items     []*warden.WatchInfo
	logName   string
	logInfo   *rest.LogInfo
	logErr    error
	logCancel context.CancelFunc
	history   []warden.Transition
	histName  string
	lock      sync.Mutex // guards the data fetched in the background

	views.WidgetWatchers
}

func (a *App) show(w views.Widget) {
	if w != a.panel {
		a.panel.SetView(nil)
		a.panel = w
	}
	a.panel.SetView(a.view)
	a.panel.Resize()
	a.app.Refresh()
}

func (a *App) ShowHelp() {
	a.show(a.help)
}

func (a *App) ShowInfo(name string) {
	a.info.SetName(name)
	a.lock.Lock()
	a.history = nil
	a.histName = name
	a.lock.Unlock()
	go a.loadHistory(name)
	a.show(a.info)
}

func (a *App) ShowLog(name string) {
	if a.logCancel != nil {
		a.logCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.lock.Lock()
	a.logInfo = nil
	a.logErr = nil
	a.logName = name
	a.lock.Unlock()
	a.logCancel = cancel
	a.log.SetName(name)
	go a.refreshLog(ctx, name)

	a.show(a.log)
}

func (a *App) ShowMain() {
	a.show(a.main)
}

func (a *App) ShowAuth() {
	a.auth.ResetFields()
	a.show(a.auth)
}

func (a *App) SetUserPassword(user, pass string) {
	a.client.SetAuth(user, pass)
	a.lock.Lock()
	a.err = nil
	a.lock.Unlock()
}

// Control applies a verb, reporting failure in the status bar.
func (a *App) Control(name, verb string) {
	ctx, cancel := context.WithTimeout(context.Background(), rest.Timeout)
	defer cancel()
	if _, err := a.client.Control(ctx, name, verb); err != nil {
		a.Logf("%s %s: %v", verb, name, err)
		a.main.SetError()
		a.main.SetStatus(err.Error())
	}
}

func (a *App) Quit() {
	if a.logCancel != nil {
		a.logCancel()
	}
	a.app.Quit()
}

func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
}

func (a *App) Logf(fmt string, v ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(fmt, v...)
	}
}

func (a *App) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		// Intercept a few control keys up front, for global handling.
		case tcell.KeyCtrlC:
			a.Quit()
			return true
		case tcell.KeyCtrlL:
			a.app.Refresh()
			return true
		}
	}

	if a.panel != nil {
		return a.panel.HandleEvent(ev)
	}
	return false
}

func (a *App) Draw() {
	if a.panel != nil {
		a.panel.Draw()
	}
}

func (a *App) Resize() {
	if a.panel != nil {
		a.panel.Resize()
	}
}

func (a *App) SetView(view views.View) {
	a.view = view
	if a.panel != nil {
		a.panel.SetView(view)
	}
}

func (a *App) Size() (int, int) {
	if a.panel != nil {
		return a.panel.Size()
	}
	return 0, 0
}

func (a *App) GetAppName() string {
	return "Warden"
}

func NewApp(client *rest.Client, url string) *App {
	app := &App{}
	app.app = &views.Application{}
	app.client = client
	app.info = NewInfoPanel(app)
	app.help = NewHelpPanel(app)
	app.log = NewLogPanel(app)
	app.main = NewMainPanel(app, url)
	app.auth = NewAuthPanel(app, url)
	app.panel = app.main
	return app
}

func unauthorized(err error) bool {
	var re *rest.Error
	return errors.As(err, &re) && re.Code == http.StatusUnauthorized
}

// refresh keeps the watch list current, long polling for changes.
func (a *App) refresh(ctx context.Context) {
	var last *rest.WatchList
	for ctx.Err() == nil {
		var list *rest.WatchList
		var err error
		if last == nil {
			list, err = a.client.Watches(ctx)
		} else {
			list, err = a.client.WaitWatches(ctx, last)
		}
		var items []*warden.WatchInfo
		if list != nil {
			items = append(items, list.Watches...)
			util.SortWatches(items)
		}
		a.lock.Lock()
		a.items = items
		a.err = err
		a.lock.Unlock()
		a.app.Update()
		if err != nil {
			last = nil
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		last = list
	}
}

func (a *App) refreshLog(ctx context.Context, name string) {
	info, e := a.client.GetLog(ctx, name)

	for {
		a.lock.Lock()
		if a.logName == name {
			a.logInfo = info
			a.logErr = e
		}
		a.lock.Unlock()
		a.app.Update()
		if ctx.Err() != nil {
			return
		}
		if e != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			info, e = a.client.GetLog(ctx, name)
			continue
		}
		info, e = a.client.WatchLog(ctx, name, info)
	}
}

func (a *App) loadHistory(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), rest.Timeout)
	defer cancel()
	h, err := a.client.History(ctx, name)
	if err != nil {
		a.Logf("history %s: %v", name, err)
		return
	}
	a.lock.Lock()
	if a.histName == name {
		a.history = h
	}
	a.lock.Unlock()
	a.app.Update()
}

func (a *App) GetItems() ([]*warden.WatchInfo, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.items, a.err
}

func (a *App) GetItem(name string) (*warden.WatchInfo, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	for _, i := range a.items {
		if i.Name == name {
			return i, nil
		}
	}
	return nil, errors.New("Watch not found")
}

func (a *App) GetLog(name string) (*rest.LogInfo, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.logName == name {
		return a.logInfo, a.logErr
	}
	return nil, nil
}

func (a *App) GetHistory(name string) []warden.Transition {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.histName == name {
		return a.history
	}
	return nil
}

// Run takes over the terminal until the user quits.
func (a *App) Run() error {
	a.Logf("Starting up user interface")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.app.SetRootWidget(a)
	a.ShowMain()
	go a.refresh(ctx)
	go func() {
		// Give us periodic updates, so durations tick
		for ctx.Err() == nil {
			a.app.Update()
			time.Sleep(time.Second)
		}
	}()
	return a.app.Run()
}
