// Package chattest provides an in-process room chat backend for tests,
// serving /ws/chat/{room}/ and broadcasting every frame to the room.
package chattest

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Server is a room-broadcasting websocket backend.
type Server struct {
	*httptest.Server

	mu      sync.RWMutex
	wmu     sync.Mutex
	rooms   map[string]map[*websocket.Conn]struct{}
	opened  []string
	origins []string
	frames  map[string][][]byte
	changed chan struct{}
	wg      sync.WaitGroup
}

// NewServer starts a server; callers must Close it.
func NewServer() *Server {
	s := &Server{
		rooms:   map[string]map[*websocket.Conn]struct{}{},
		frames:  map[string][][]byte{},
		changed: make(chan struct{}),
	}
	r := chi.NewRouter()
	r.Get("/ws/chat/{room}/", s.handleWS)
	s.Server = httptest.NewServer(r)
	return s
}

// Host is the host:port the server listens on.
func (s *Server) Host() string {
	u, _ := url.Parse(s.URL)
	return u.Host
}

// Close disconnects every client and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0)
	for _, set := range s.rooms {
		for c := range set {
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()
	s.wmu.Lock()
	for _, c := range conns {
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		_ = c.Close()
	}
	s.wmu.Unlock()
	s.wg.Wait()
	s.Server.Close()
}

// Broadcast sends a raw frame to every client of room.
func (s *Server) Broadcast(room string, frame []byte) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, c := range s.members(room) {
		_ = c.WriteMessage(websocket.TextMessage, frame)
	}
}

// Kick closes every client connection of room from the server side.
func (s *Server) Kick(room string) {
	for _, c := range s.members(room) {
		_ = c.Close()
	}
}

// OpenCount is the number of live connections across all rooms.
func (s *Server) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.rooms {
		n += len(set)
	}
	return n
}

// RoomCount is the number of live connections in room.
func (s *Server) RoomCount(room string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}

// Opened lists the rooms of every accepted connection, in order.
func (s *Server) Opened() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.opened...)
}

// Origins lists the Origin header of every accepted connection, in order.
func (s *Server) Origins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.origins...)
}

// Frames returns every frame received from clients of room.
func (s *Server) Frames(room string) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([][]byte(nil), s.frames[room]...)
}

// WaitFor polls cond on every state change until it holds or timeout passes.
func (s *Server) WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.After(timeout)
	for {
		s.mu.RLock()
		ch := s.changed
		s.mu.RUnlock()
		if cond() {
			return true
		}
		select {
		case <-ch:
		case <-deadline:
			return cond()
		}
	}
}

func (s *Server) members(room string) []*websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(s.rooms[room]))
	for c := range s.rooms[room] {
		conns = append(conns, c)
	}
	return conns
}

// notify wakes WaitFor callers; s.mu must be held.
func (s *Server) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	if r.URL.RawPath != "" {
		var err error
		if room, err = url.PathUnescape(room); err != nil {
			http.Error(w, "bad room", http.StatusBadRequest)
			return
		}
	}
	if strings.TrimSpace(room) == "" {
		http.Error(w, "bad room", http.StatusBadRequest)
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.rooms[room] == nil {
		s.rooms[room] = map[*websocket.Conn]struct{}{}
	}
	s.rooms[room][conn] = struct{}{}
	s.opened = append(s.opened, room)
	s.origins = append(s.origins, r.Header.Get("Origin"))
	s.notify()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.rooms[room], conn)
			s.notify()
			s.mu.Unlock()
			_ = conn.Close()
			s.wg.Done()
		}()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("room", room).Msg("[chattest] read")
				return
			}
			s.mu.Lock()
			s.frames[room] = append(s.frames[room], payload)
			s.notify()
			s.mu.Unlock()
			s.Broadcast(room, payload)
		}
	}()
}
