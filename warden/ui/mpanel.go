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

	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"

	"github.com/gdamore/warden"
	"github.com/gdamore/warden/warden/util"
)

// MainPanel implements a Widget as a Panel, but provides the data
// model and handling for the content area, using the watch list polled
// from the daemon.
type MainPanel struct {
	content  *views.CellView
	selected *warden.WatchInfo
	nfailed  int
	nup      int
	nwaiting int
	nidle    int
	width    int
	height   int
	curx     int
	cury     int
	lines    []string
	styles   []tcell.Style
	items    []*warden.WatchInfo

	Panel
}

// mainModel provides the model for a CellArea.
type mainModel struct {
	m *MainPanel
}

func NewMainPanel(app *App, server string) *MainPanel {
	m := &MainPanel{}

	m.Panel.Init(app)
	m.content = views.NewCellView()
	m.SetContent(m.content)

	m.content.SetModel(&mainModel{m})
	m.content.SetStyle(StyleNormal)

	m.SetTitle(server)
	m.SetKeys([]string{"[Q] Quit"})

	return m
}

func (m *MainPanel) Draw() {
	m.update()
	m.Panel.Draw()
}

func (m *MainPanel) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEsc:
			m.unselect()
			return true
		case tcell.KeyF1:
			m.App().ShowHelp()
			return true
		case tcell.KeyEnter:
			if m.selected != nil {
				m.App().ShowInfo(m.selected.Name)
				return true
			}
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'Q', 'q':
				m.App().Quit()
				return true
			case 'H', 'h':
				m.App().ShowHelp()
				return true
			case 'I', 'i':
				if m.selected != nil {
					m.App().ShowInfo(m.selected.Name)
					return true
				}
			case 'L', 'l':
				if m.selected != nil {
					m.App().ShowLog(m.selected.Name)
				} else {
					m.App().ShowLog("")
				}
				return true
			default:
				if m.handleAction(ev.Rune(), m.selected) {
					return true
				}
			}
		}
	}
	return m.Panel.HandleEvent(ev)
}

// Model items
func (model *mainModel) GetCell(x, y int) (rune, tcell.Style, []rune, int) {
	m := model.m

	if y < 0 || y >= len(m.lines) {
		return ' ', StyleNormal, nil, 1
	}

	ch := ' '
	if x >= 0 && x < len(m.lines[y]) {
		ch = rune(m.lines[y][x])
	}
	style := m.styles[y]
	if m.items[y] == m.selected {
		style = style.Reverse(true)
	}
	return ch, style, nil, 1
}

func (model *mainModel) GetBounds() (int, int) {
	// This assumes that all content is displayable runes of width 1.
	m := model.m
	x := 0
	for _, l := range m.lines {
		if x < len(l) {
			x = len(l)
		}
	}
	return x, len(m.lines)
}

func (model *mainModel) GetCursor() (int, int, bool, bool) {
	m := model.m
	return m.curx, m.cury, true, false
}

func (model *mainModel) MoveCursor(offx, offy int) {
	m := model.m
	m.curx += offx
	m.cury += offy
	m.updateCursor(true)
}

func (model *mainModel) SetCursor(x, y int) {
	m := model.m
	m.curx = x
	m.cury = y
	m.updateCursor(true)
}

func (m *MainPanel) unselect() {
	m.cury = 0
	m.curx = 0
	m.updateCursor(false)
}

func (m *MainPanel) updateCursor(selected bool) {
	if m.curx > m.width-1 {
		m.curx = m.width - 1
	}
	if m.cury > m.height-1 {
		m.cury = m.height - 1
	}
	if m.curx < 0 {
		m.curx = 0
	}
	if m.cury < 0 {
		m.cury = 0
	}
	if selected && m.height > 0 {
		if m.selected == nil {
			m.curx = 0
			m.cury = 0
		}
		m.selected = m.items[m.cury]
	} else {
		m.selected = nil
	}
}

// update is called to update content, e.g. in response to Draw() or
// as part of another update.
func (m *MainPanel) update() {
	items, err := m.App().GetItems()
	m.items = items

	// preserve selected item
	if sel := m.selected; sel != nil {
		m.selected = nil
		for i, item := range m.items {
			if item.Name == sel.Name {
				m.selected = item
				m.cury = i
			}
		}
	}
	if err != nil {
		if unauthorized(err) {
			m.App().ShowAuth()
			return
		}
		m.SetError()
		m.SetStatus(fmt.Sprintf("Cannot load watches: %v", err))
		m.lines = []string{}
		m.styles = []tcell.Style{}
		m.items = nil
		m.height = 0
		return
	}

	lines := make([]string, 0, len(m.items))
	styles := make([]tcell.Style, 0, len(m.items))

	m.nfailed = 0
	m.nup = 0
	m.nwaiting = 0
	m.nidle = 0

	m.height = 0
	m.width = 0

	for _, info := range items {
		pid := "-"
		if info.Pid > 0 {
			pid = fmt.Sprint(info.Pid)
		}
		line := fmt.Sprintf("%-20s %-10s %-12s %7s %10s   %s",
			info.Name, info.Group, util.Status(info), pid,
			util.FormatDuration(util.Since(info)), info.Reason)

		if len(line) > m.width {
			m.width = len(line)
		}
		m.height++

		lines = append(lines, line)
		var style tcell.Style
		switch {
		case info.Failed:
			style = StyleError
			m.nfailed++
		case !util.Monitored(info):
			style = StyleNormal
			m.nidle++
		case util.Up(info):
			style = StyleGood
			m.nup++
		default:
			style = StyleWarn
			m.nwaiting++
		}
		styles = append(styles, style)
	}

	m.lines = lines
	m.styles = styles

	m.SetStatus(fmt.Sprintf(
		"%6d Watches %6d Failed %6d Up %6d Pending %6d Unmonitored",
		len(m.items), m.nfailed, m.nup, m.nwaiting, m.nidle))

	switch {
	case m.nfailed > 0:
		m.SetError()
	case m.nwaiting > 0:
		m.SetWarn()
	case m.nup > 0:
		m.SetGood()
	default:
		m.SetNormal()
	}

	words := []string{"[Q] Quit", "[H] Help"}
	if m.selected != nil {
		words = append(words, "[I] Info")
	}
	words = append(words, "[L] Log")
	m.SetKeys(actionKeys(words, m.selected))
}
