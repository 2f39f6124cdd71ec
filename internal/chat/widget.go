package chat

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	eventBufferSize = 64

	// DefaultHistoryLimit is the number of stored lines replayed when a room opens.
	DefaultHistoryLimit = 50
)

// State is the connection state of a widget.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Event is delivered on Widget.Events and must be passed back to
// Widget.Handle from the event loop. Gen identifies the connection attempt
// the event belongs to.
type Event interface {
	generation() uint64
}

// Opened reports a successful dial.
type Opened struct {
	Gen  uint64
	Room string
	Conn Conn
}

// Frame carries one inbound frame.
type Frame struct {
	Gen  uint64
	Data []byte
}

// Closed reports a failed dial or a connection that went away.
type Closed struct {
	Gen uint64
	Err error
}

func (e Opened) generation() uint64 { return e.Gen }
func (e Frame) generation() uint64 { return e.Gen }
func (e Closed) generation() uint64 { return e.Gen }

// Options tune a widget.
type Options struct {
	History History
	// HistoryLimit caps the lines replayed when a room opens. Zero means
	// DefaultHistoryLimit and a negative value disables replay.
	HistoryLimit int
	// Logger receives widget logs, tagged with a per-widget id.
	Logger *zerolog.Logger
}

// Widget owns at most one room connection and mirrors it into a View.
// Every method except Events must be called from the same goroutine.
type Widget struct {
	id       string
	endpoint Endpoint
	dialer   Dialer
	view     View
	history  History
	limit    int
	logger   zerolog.Logger

	room      string
	conn      Conn
	gen       uint64
	state     State
	collapsed bool

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
}

func NewWidget(endpoint Endpoint, dialer Dialer, view View, opts Options) *Widget {
	if dialer == nil {
		dialer = WebSocketDialer{}
	}
	limit := opts.HistoryLimit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}
	id := uuid.NewString()
	return &Widget{
		id:       id,
		endpoint: endpoint,
		dialer:   dialer,
		view:     view,
		history:  opts.History,
		limit:    limit,
		logger:   base.With().Str("widget", id).Logger(),
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}
}

// Events delivers connection events for Handle.
func (w *Widget) Events() <-chan Event { return w.events }

func (w *Widget) State() State { return w.state }

// Room is the most recently selected room, connected or not.
func (w *Widget) Room() string { return w.room }

func (w *Widget) Collapsed() bool { return w.collapsed }

// Toggle flips the collapsed state of the chat panel.
func (w *Widget) Toggle() {
	w.collapsed = !w.collapsed
	w.view.SetCollapsed(w.collapsed)
}

// SelectRoom tears down the current connection and starts dialing room.
// The outcome arrives later as an Opened or Closed event. Selecting the
// room that is already connected does nothing.
func (w *Widget) SelectRoom(ctx context.Context, room string) error {
	if w.isClosed() {
		return ErrClosed
	}
	target, err := w.endpoint.URL(room)
	if err != nil {
		return err
	}
	if w.state == Connected && room == w.room {
		return nil
	}

	w.release()
	w.room = room
	gen := w.gen

	dctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	header := http.Header{}
	header.Set("Origin", w.endpoint.Origin())

	w.logger.Info().Str("room", room).Str("url", target).Msg("[chat] connecting")
	go func() {
		defer cancel()
		conn, err := w.dialer.Dial(dctx, target, header)
		if err != nil {
			w.post(Closed{Gen: gen, Err: err})
			return
		}
		if !w.post(Opened{Gen: gen, Room: room, Conn: conn}) {
			_ = conn.Close()
		}
	}()
	return nil
}

// Handle applies an event on the event loop and reports whether it belonged
// to the current connection. Stale events never change state.
func (w *Widget) Handle(ev Event) bool {
	if ev.generation() != w.gen || w.isClosed() {
		switch ev := ev.(type) {
		case Opened:
			_ = ev.Conn.Close()
		case Closed:
			w.logger.Debug().Err(ev.Err).Uint64("gen", ev.Gen).Msg("[chat] previous socket closed")
		}
		return false
	}

	switch ev := ev.(type) {
	case Opened:
		w.conn = ev.Conn
		w.state = Connected
		w.logger.Info().Str("room", ev.Room).Msg("[chat] connected")
		w.replay(ev.Room)
		go w.readLoop(ev.Gen, ev.Conn)

	case Frame:
		text, err := Decode(ev.Data)
		if err != nil {
			w.logger.Warn().Err(err).Msg("[chat] drop inbound frame")
			return true
		}
		line := Sanitize(text)
		w.view.AppendLine(line)
		w.view.ScrollToBottom()
		if w.history != nil {
			if err := w.history.Append(w.room, line); err != nil {
				w.logger.Debug().Err(err).Msg("[chat] persist message")
			}
		}

	case Closed:
		if w.conn == nil {
			w.logger.Error().Err(ev.Err).Str("room", w.room).Msg("[chat] dial failed")
		} else {
			w.logger.Error().Err(ev.Err).Str("room", w.room).Msg("[chat] chat socket closed unexpectedly")
		}
		w.release()
	}
	return true
}

// Send transmits the input text as one frame and clears the input. It is a
// no-op, returning false, when the input is empty or no connection is open.
func (w *Widget) Send() bool {
	text := w.view.InputText()
	if text == "" || w.state != Connected || w.conn == nil {
		return false
	}
	frame, err := Encode(text)
	if err != nil {
		w.logger.Warn().Err(err).Msg("[chat] encode message")
		return false
	}
	if err := w.conn.WriteFrame(frame); err != nil {
		w.logger.Error().Err(err).Str("room", w.room).Msg("[chat] send failed")
		w.release()
		return false
	}
	w.view.ClearInput()
	return true
}

// Close drops the current connection and stops event delivery.
func (w *Widget) Close() error {
	w.closeOnce.Do(func() {
		w.release()
		close(w.done)
	})
	return nil
}

// release closes the current connection, if any, and returns to Disconnected.
// Events still in flight for the released connection become stale.
func (w *Widget) release() {
	w.gen++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			w.logger.Debug().Err(err).Msg("[chat] close socket")
		}
		w.conn = nil
	}
	w.state = Disconnected
}

func (w *Widget) replay(room string) {
	if w.history == nil || w.limit < 0 {
		return
	}
	lines, err := w.history.Recent(room, w.limit)
	if err != nil {
		w.logger.Warn().Err(err).Str("room", room).Msg("[chat] load history failed")
		return
	}
	for _, line := range lines {
		w.view.AppendLine(line)
	}
	if len(lines) > 0 {
		w.view.ScrollToBottom()
	}
}

func (w *Widget) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			w.post(Closed{Gen: gen, Err: err})
			return
		}
		if !w.post(Frame{Gen: gen, Data: data}) {
			return
		}
	}
}

// post delivers ev unless the widget has been closed.
func (w *Widget) post(ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}

func (w *Widget) isClosed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
