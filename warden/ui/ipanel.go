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
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/warden/warden/util"
)

// InfoPanel shows one watch and its recent transitions.
type InfoPanel struct {
	text *views.TextArea
	name string

	Panel
}

func NewInfoPanel(app *App) *InfoPanel {
	p := &InfoPanel{}
	p.Panel.Init(app)

	p.text = views.NewTextArea()
	p.text.EnableCursor(false)
	p.text.SetStyle(StyleNormal)
	p.SetContent(p.text)
	p.SetKeys([]string{"[ESC] Main", "[H] Help"})
	return p
}

func (p *InfoPanel) Draw() {
	p.update()
	p.Panel.Draw()
}

func (p *InfoPanel) HandleEvent(ev tcell.Event) bool {
	app := p.App()
	info, _ := app.GetItem(p.name)
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			app.ShowMain()
			return true
		case tcell.KeyF1:
			app.ShowHelp()
			return true
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				app.ShowMain()
				return true
			case 'H', 'h':
				app.ShowHelp()
				return true
			case 'L', 'l':
				app.ShowLog(p.name)
				return true
			default:
				if p.handleAction(ev.Rune(), info) {
					return true
				}
			}
		}
	}
	return p.Panel.HandleEvent(ev)
}

func (p *InfoPanel) SetName(name string) {
	p.name = name
	p.SetTitle("Details for " + name)
}

func (p *InfoPanel) update() {
	s, err := p.App().GetItem(p.name)
	words := []string{"[ESC] Main", "[H] Help"}

	if s == nil {
		p.SetStatus(fmt.Sprintf("No data: %v", err))
		p.SetError()
		p.text.SetLines(nil)
		p.SetKeys(words)
		return
	}

	p.SetStatus(s.Reason)
	p.SetHealth(s)

	lines := []string{
		fmt.Sprintf("%11s %s", "Name:", s.Name),
		fmt.Sprintf("%11s %s", "Group:", s.Group),
		fmt.Sprintf("%11s %s", "State:", util.Status(s)),
		fmt.Sprintf("%11s %d", "PID:", s.Pid),
		fmt.Sprintf("%11s %v", "Autostart:", s.Autostart),
		fmt.Sprintf("%11s %s (%s)", "Since:",
			s.Stamp.Format(time.Stamp), util.FormatDuration(util.Since(s))),
		fmt.Sprintf("%11s %s", "Reason:", s.Reason),
		"",
		"Transitions:",
	}
	hist := p.App().GetHistory(p.name)
	for i := len(hist) - 1; i >= 0; i-- {
		t := hist[i]
		mark := " "
		if t.Fatal {
			mark = "!"
		}
		lines = append(lines, fmt.Sprintf("%s %s %-12s -> %-12s %s",
			mark, t.Time.Format(time.StampMilli), t.From.String(), t.To.String(), t.Reason))
	}
	p.text.SetLines(lines)

	words = append(words, "[L] Log")
	p.SetKeys(actionKeys(words, s))
}
