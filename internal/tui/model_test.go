package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/roomchat/internal/chat"
	"github.com/gosuda/roomchat/internal/chattest"
)

func newTestModel(t *testing.T, room string) (*Model, *chattest.Server) {
	t.Helper()
	srv := chattest.NewServer()
	t.Cleanup(srv.Close)
	ep, err := chat.ParseEndpoint(srv.URL, false)
	require.NoError(t, err)
	m := New(context.Background(), Options{
		Endpoint: ep,
		Dialer:   chat.WebSocketDialer{HandshakeTimeout: 2 * time.Second},
		Rooms:    []string{"lobby", "general"},
		Room:     room,
	})
	t.Cleanup(func() { _ = m.Widget().Close() })
	return m, srv
}

// deliver feeds widget events into Update until cond holds.
func deliver(t *testing.T, m *Model, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case ev := <-m.Widget().Events():
			m.Update(eventMsg{ev: ev})
		case <-deadline:
			t.Fatalf("condition not reached; status=%q", m.statusLine())
		}
	}
}

func typeText(m *Model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func TestModelStartsWithoutRoom(t *testing.T) {
	m, srv := newTestModel(t, "")
	m.Init()

	assert.Equal(t, chat.Disconnected, m.Widget().State())
	assert.Contains(t, m.View(), "no room selected")
	assert.Contains(t, m.View(), " lobby ")
	assert.Empty(t, srv.Opened())
}

func TestModelToggle(t *testing.T) {
	m, _ := newTestModel(t, "")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.True(t, m.Widget().Collapsed())
	assert.Contains(t, m.View(), "chat hidden")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.False(t, m.Widget().Collapsed())
	assert.NotContains(t, m.View(), "chat hidden")
}

func TestModelEnterWithoutConnectionKeepsInput(t *testing.T) {
	m, _ := newTestModel(t, "")

	typeText(m, "hello")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "hello", m.panel.InputText())
}

func TestModelTabSelectsRoomsInOrder(t *testing.T) {
	m, srv := newTestModel(t, "")

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	deliver(t, m, func() bool { return m.Widget().State() == chat.Connected })
	assert.Equal(t, "lobby", m.Widget().Room())
	assert.Contains(t, m.View(), "[lobby]")

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	deliver(t, m, func() bool { return m.Widget().State() == chat.Connected && m.Widget().Room() == "general" })
	require.True(t, srv.WaitFor(2*time.Second, func() bool { return srv.OpenCount() == 1 && srv.RoomCount("general") == 1 }))

	m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	deliver(t, m, func() bool { return m.Widget().State() == chat.Connected && m.Widget().Room() == "lobby" })
	assert.Equal(t, []string{"lobby", "general", "lobby"}, srv.Opened())
}

func TestModelSendAndReceive(t *testing.T) {
	m, srv := newTestModel(t, "lobby")
	m.Init()
	deliver(t, m, func() bool { return m.Widget().State() == chat.Connected })
	require.True(t, srv.WaitFor(2*time.Second, func() bool { return srv.RoomCount("lobby") == 1 }))

	typeText(m, "hi all")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "", m.panel.InputText())

	deliver(t, m, func() bool { return len(m.panel.lines) == 1 })
	assert.Equal(t, []string{"hi all"}, m.panel.lines)
	assert.Contains(t, m.View(), "hi all")
}

func TestModelRemoteCloseIsSilent(t *testing.T) {
	m, srv := newTestModel(t, "lobby")
	m.Init()
	deliver(t, m, func() bool { return m.Widget().State() == chat.Connected })
	require.True(t, srv.WaitFor(2*time.Second, func() bool { return srv.RoomCount("lobby") == 1 }))

	srv.Kick("lobby")
	deliver(t, m, func() bool { return m.Widget().State() == chat.Disconnected })

	view := m.View()
	assert.Contains(t, view, "lobby: disconnected")
	assert.NotContains(t, view, "reconnect")
	assert.Empty(t, m.panel.lines)
}

func TestModelSelectErrorIsSilent(t *testing.T) {
	m, _ := newTestModel(t, "")
	m.rooms = []string{".."}

	m.Update(tea.KeyMsg{Type: tea.KeyTab})

	assert.Equal(t, "no room selected", m.statusLine())
	assert.NotContains(t, m.View(), "invalid room")
}

func TestModelUnknownInitialRoomIsAdded(t *testing.T) {
	m, _ := newTestModel(t, "ops")

	assert.Equal(t, []string{"lobby", "general", "ops"}, m.rooms)
	assert.Equal(t, 2, m.active)
}

func TestModelQuitClosesWidget(t *testing.T) {
	m, _ := newTestModel(t, "")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.ErrorIs(t, m.Widget().SelectRoom(context.Background(), "lobby"), chat.ErrClosed)
}
