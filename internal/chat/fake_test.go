package chat_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gosuda/roomchat/internal/chat"
)

type fakeView struct {
	input     string
	lines     []string
	scrolls   int
	collapsed bool
}

func (v *fakeView) InputText() string { return v.input }
func (v *fakeView) ClearInput() { v.input = "" }
func (v *fakeView) AppendLine(line string) { v.lines = append(v.lines, line) }
func (v *fakeView) ScrollToBottom() { v.scrolls++ }
func (v *fakeView) SetCollapsed(c bool) { v.collapsed = c }

type fakeConn struct {
	url    string
	origin string
	in     chan []byte
	gone   chan struct{}
	once   sync.Once

	closedByClient atomic.Bool
	writeErr       error

	mu  sync.Mutex
	out [][]byte
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{url: url, in: make(chan []byte, 16), gone: make(chan struct{})}
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.gone:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteFrame(b []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closedByClient.Store(true)
	c.once.Do(func() { close(c.gone) })
	return nil
}

// drop simulates the remote side going away.
func (c *fakeConn) drop() {
	c.once.Do(func() { close(c.gone) })
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.out...)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (chat.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn(url)
	c.origin = header.Get("Origin")
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialed() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

type fakeHistory struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (h *fakeHistory) Append(room, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lines == nil {
		h.lines = map[string][]string{}
	}
	h.lines[room] = append(h.lines[room], text)
	return nil
}

func (h *fakeHistory) Recent(room string, limit int) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lines := h.lines[room]
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return append([]string(nil), lines...), nil
}

// pump handles one event from w, failing the test if none arrives.
func pump(t *testing.T, w *chat.Widget) chat.Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		w.Handle(ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no widget event within timeout")
		return nil
	}
}

// pumpUntil handles events until cond holds.
func pumpUntil(t *testing.T, w *chat.Widget, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case ev := <-w.Events():
			w.Handle(ev)
		case <-deadline:
			t.Fatalf("condition not reached; state=%s room=%q", w.State(), w.Room())
		}
	}
}
