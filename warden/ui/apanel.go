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
	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"
)

const maxField = 16

// AuthPanel asks for credentials when the daemon refuses us.
type AuthPanel struct {
	hlayout    *views.BoxLayout
	left       *views.BoxLayout
	right      *views.BoxLayout
	uprompt    *views.Text
	pprompt    *views.Text
	ufield     *views.Text
	pfield     *views.Text
	passactive bool
	username   []rune
	password   []rune

	Panel
}

var (
	fieldFocus = tcell.StyleDefault.
			Foreground(tcell.ColorWhite).
			Background(tcell.ColorNavy)
)

func NewAuthPanel(app *App, server string) *AuthPanel {
	a := &AuthPanel{}
	a.Panel.Init(app)

	a.username = make([]rune, 0, 128)
	a.password = make([]rune, 0, 128)

	a.hlayout = views.NewBoxLayout(views.Horizontal)
	a.left = views.NewBoxLayout(views.Vertical)
	a.right = views.NewBoxLayout(views.Vertical)
	a.uprompt = views.NewText()
	a.pprompt = views.NewText()
	a.ufield = views.NewText()
	a.pfield = views.NewText()
	a.uprompt.SetText("Username: ")
	a.pprompt.SetText("Password: ")

	for _, t := range []*views.Text{a.uprompt, a.pprompt, a.ufield, a.pfield} {
		t.SetStyle(StyleNormal)
	}
	a.hlayout.SetStyle(StyleNormal)
	a.left.SetStyle(StyleNormal)
	a.right.SetStyle(StyleNormal)

	a.left.AddWidget(views.NewSpacer(), 1.0)
	a.left.AddWidget(a.uprompt, 0.0)
	a.left.AddWidget(a.pprompt, 0.0)
	a.left.AddWidget(views.NewSpacer(), 1.0)

	a.right.AddWidget(views.NewSpacer(), 1.0)
	a.right.AddWidget(a.ufield, 0.0)
	a.right.AddWidget(a.pfield, 0.0)
	a.right.AddWidget(views.NewSpacer(), 1.0)

	a.hlayout.AddWidget(views.NewSpacer(), 1.0)
	a.hlayout.AddWidget(a.left, 0.0)
	a.hlayout.AddWidget(a.right, 0.0)
	a.hlayout.AddWidget(views.NewSpacer(), 1.0)

	a.SetTitle(server)
	a.SetStatus("Authentication Required")
	a.SetKeys([]string{"[ESC] Quit", "[TAB] Next"})
	a.SetContent(a.hlayout)
	a.update()

	return a
}

func (a *AuthPanel) ResetFields() {
	a.passactive = false
	a.username = a.username[:0]
	a.password = a.password[:0]
}

func (a *AuthPanel) Draw() {
	a.update()
	a.Panel.Draw()
}

func (a *AuthPanel) field() *[]rune {
	if a.passactive {
		return &a.password
	}
	return &a.username
}

func (a *AuthPanel) HandleEvent(ev tcell.Event) bool {
	ek, ok := ev.(*tcell.EventKey)
	if !ok {
		return a.Panel.HandleEvent(ev)
	}
	f := a.field()
	switch ek.Key() {
	case tcell.KeyEsc:
		a.App().Quit()
	case tcell.KeyTab, tcell.KeyEnter:
		if a.passactive {
			a.App().SetUserPassword(string(a.username), string(a.password))
			a.App().ShowMain()
		} else {
			a.passactive = true
		}
	case tcell.KeyBacktab:
		a.passactive = false
	case tcell.KeyCtrlU, tcell.KeyCtrlW:
		*f = (*f)[:0]
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(*f) > 0 {
			*f = (*f)[:len(*f)-1]
		}
	case tcell.KeyRune:
		if len(*f) < 256 {
			*f = append(*f, ek.Rune())
		}
	default:
		return false
	}
	return true
}

// prompt renders the last maxField runes of a field.
func prompt(r []rune, active bool) string {
	p := append([]rune{}, r...)
	if active {
		p = append(p, '_')
	}
	if len(p) > maxField {
		p = p[len(p)-maxField:]
		p[0] = '<'
	}
	for len(p) < maxField {
		p = append(p, ' ')
	}
	return string(p)
}

func (a *AuthPanel) update() {
	a.Panel.SetError()

	stars := make([]rune, len(a.password))
	for i := range stars {
		stars[i] = '*'
	}
	a.ufield.SetText(prompt(a.username, !a.passactive))
	a.pfield.SetText(prompt(stars, a.passactive))

	if a.passactive {
		a.pfield.SetStyle(fieldFocus)
		a.ufield.SetStyle(StyleNormal)
	} else {
		a.ufield.SetStyle(fieldFocus)
		a.pfield.SetStyle(StyleNormal)
	}
}
