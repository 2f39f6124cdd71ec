// Package tui renders a chat widget in the terminal: a room selector, the
// scrolling message list and an input line.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/roomchat/internal/chat"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	// room bar, status line, input and help
	chromeLines = 4
)

// Options configure a Model.
type Options struct {
	Endpoint chat.Endpoint
	Dialer   chat.Dialer
	Widget   chat.Options
	Rooms    []string
	// Room, when set, is selected as soon as the program starts.
	Room string
}

// eventMsg carries a widget event into the bubbletea loop.
type eventMsg struct{ ev chat.Event }

// Model is the bubbletea model hosting a chat.Widget.
type Model struct {
	ctx    context.Context
	widget *chat.Widget
	panel  *panel
	rooms  []string
	active int
}

func New(ctx context.Context, opts Options) *Model {
	p := newPanel(defaultWidth, defaultHeight-chromeLines)
	m := &Model{
		ctx:    ctx,
		panel:  p,
		rooms:  opts.Rooms,
		active: -1,
	}
	m.widget = chat.NewWidget(opts.Endpoint, opts.Dialer, p, opts.Widget)
	if opts.Room != "" {
		for i, r := range m.rooms {
			if r == opts.Room {
				m.active = i
			}
		}
		if m.active < 0 {
			m.rooms = append(m.rooms, opts.Room)
			m.active = len(m.rooms) - 1
		}
	}
	return m
}

// Widget exposes the hosted widget.
func (m *Model) Widget() *chat.Widget { return m.widget }

func (m *Model) Init() tea.Cmd {
	if m.active >= 0 {
		m.selectRoom(m.active)
	}
	return tea.Batch(textinput.Blink, waitEvent(m.widget.Events()))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.widget.Handle(msg.ev)
		return m, waitEvent(m.widget.Events())

	case tea.WindowSizeMsg:
		m.panel.resize(msg.Width, msg.Height-chromeLines)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			_ = m.widget.Close()
			return m, tea.Quit
		case "ctrl+t":
			m.widget.Toggle()
			return m, nil
		case "tab":
			if len(m.rooms) > 0 {
				m.selectRoom((m.active + 1) % len(m.rooms))
			}
			return m, nil
		case "shift+tab":
			if len(m.rooms) > 0 {
				next := m.active - 1
				if next < 0 {
					next = len(m.rooms) - 1
				}
				m.selectRoom(next)
			}
			return m, nil
		case "enter":
			m.widget.Send()
			return m, nil
		}
	}

	if m.panel.collapsed {
		return m, nil
	}
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.panel.input, cmd = m.panel.input.Update(msg)
	cmds = append(cmds, cmd)
	m.panel.list, cmd = m.panel.list.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.roomBar())
	b.WriteByte('\n')
	if m.panel.collapsed {
		b.WriteString("chat hidden, press ctrl+t to show\n")
	} else {
		b.WriteString(m.panel.list.View())
		b.WriteByte('\n')
		b.WriteString(m.panel.input.View())
		b.WriteByte('\n')
	}
	b.WriteString(m.statusLine())
	b.WriteByte('\n')
	b.WriteString("tab/shift+tab room  enter send  ctrl+t toggle  esc quit")
	return b.String()
}

func (m *Model) selectRoom(i int) {
	m.active = i
	room := m.rooms[i]
	if err := m.widget.SelectRoom(m.ctx, room); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("[chat] select room")
	}
}

func (m *Model) roomBar() string {
	parts := make([]string, 0, len(m.rooms)+1)
	parts = append(parts, "rooms:")
	for i, r := range m.rooms {
		if i == m.active {
			parts = append(parts, "["+r+"]")
		} else {
			parts = append(parts, " "+r+" ")
		}
	}
	return strings.Join(parts, " ")
}

func (m *Model) statusLine() string {
	if m.widget.Room() == "" {
		return "no room selected"
	}
	return fmt.Sprintf("%s: %s", m.widget.Room(), m.widget.State())
}

func waitEvent(ch <-chan chat.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg{ev: <-ch}
	}
}

// panel is the terminal rendition of the widget's page elements.
type panel struct {
	input     textinput.Model
	list      viewport.Model
	lines     []string
	collapsed bool
}

var _ chat.View = (*panel)(nil)

func newPanel(width, height int) *panel {
	in := textinput.New()
	in.Placeholder = "type a message and press enter"
	in.Prompt = "> "
	in.CharLimit = 4096
	in.Focus()

	list := viewport.New(width, max(height, 1))
	// Only paging keys scroll; letters belong to the input.
	list.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}
	return &panel{input: in, list: list}
}

func (p *panel) resize(width, height int) {
	p.list.Width = width
	p.list.Height = max(height, 1)
	p.input.Width = max(width-len(p.input.Prompt)-1, 1)
}

func (p *panel) InputText() string { return p.input.Value() }

func (p *panel) ClearInput() { p.input.Reset() }

func (p *panel) AppendLine(line string) {
	p.lines = append(p.lines, line)
	p.list.SetContent(strings.Join(p.lines, "\n"))
}

func (p *panel) ScrollToBottom() { p.list.GotoBottom() }

func (p *panel) SetCollapsed(collapsed bool) { p.collapsed = collapsed }
