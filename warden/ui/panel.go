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

package ui

import (
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/warden"
	"github.com/gdamore/warden/warden/util"
)

var (
	StyleNormal = tcell.StyleDefault.
			Foreground(tcell.ColorSilver).
			Background(tcell.ColorBlack)
	StyleGood = tcell.StyleDefault.
			Foreground(tcell.ColorGreen).
			Background(tcell.ColorBlack)
	StyleWarn = tcell.StyleDefault.
			Foreground(tcell.ColorYellow).
			Background(tcell.ColorBlack)
	StyleError = tcell.StyleDefault.
			Foreground(tcell.ColorMaroon).
			Background(tcell.ColorBlack)
)

// Panel is just a wrapper around the views.Panel, but it changes
// the names of elements to match our usage, making it easier (hopefully)
// to grok what is going on.
type Panel struct {
	tb   *TitleBar
	sb   *StatusBar
	kb   *KeyBar
	once sync.Once
	app  *App

	views.Panel
}

func (p *Panel) SetTitle(title string) {
	p.tb.SetCenter(title)
}

func (p *Panel) SetKeys(words []string) {
	p.kb.SetKeys(words)
}

func (p *Panel) SetStatus(status string) {
	p.sb.SetText(status)
}

func (p *Panel) SetGood()   { p.sb.SetGood() }
func (p *Panel) SetNormal() { p.sb.SetNormal() }
func (p *Panel) SetWarn()   { p.sb.SetWarn() }
func (p *Panel) SetError()  { p.sb.SetError() }

// SetHealth colors the status bar after the watch.
func (p *Panel) SetHealth(w *warden.WatchInfo) {
	switch {
	case w.Failed:
		p.SetError()
	case !util.Monitored(w):
		p.SetNormal()
	case util.Up(w):
		p.SetGood()
	default:
		p.SetWarn()
	}
}

func (p *Panel) Init(app *App) {
	p.once.Do(func() {
		p.app = app

		p.tb = NewTitleBar()
		p.tb.SetRight(app.GetAppName())
		p.tb.SetCenter(" ")

		p.kb = NewKeyBar()

		p.sb = NewStatusBar()

		p.Panel.SetTitle(p.tb)
		p.Panel.SetMenu(p.sb)
		p.Panel.SetStatus(p.kb)
	})
}

func (p *Panel) App() *App {
	return p.app
}

// actionKeys lists the verbs that make sense for a watch.
func actionKeys(words []string, w *warden.WatchInfo) []string {
	if w == nil {
		return words
	}
	if !util.Monitored(w) {
		words = append(words, "[M] Monitor", "[S] Start")
	} else {
		words = append(words, "[U] Unmonitor", "[T] Stop", "[R] Restart")
	}
	return words
}

// handleAction applies the verb bound to key to the watch, returning
// false if the key is not an action key.
func (p *Panel) handleAction(r rune, w *warden.WatchInfo) bool {
	if w == nil {
		return false
	}
	verb := ""
	switch r {
	case 'S', 's':
		verb = warden.VerbStart
	case 'T', 't':
		verb = warden.VerbStop
	case 'R', 'r':
		verb = warden.VerbRestart
	case 'M', 'm':
		verb = warden.VerbMonitor
	case 'U', 'u':
		verb = warden.VerbUnmonitor
	default:
		return false
	}
	p.app.Control(w.Name, verb)
	return true
}
