// Package history keeps a local transcript of chat rooms in PebbleDB.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"
)

var ErrInvalidRoom = errors.New("invalid room for history")

// Entry is one stored line.
type Entry struct {
	TS   time.Time `json:"ts"`
	Room string    `json:"room"`
	Text string    `json:"text"`
}

// Store persists entries keyed by room and a per-room sequence number:
// room bytes, a zero separator, then an 8-byte big-endian sequence.
// A nil *Store is valid and stores nothing.
type Store struct {
	db   *pebble.DB
	mu   sync.Mutex
	next map[string]uint64
	now  func() time.Time
}

// Open opens (creating if needed) a store rooted at dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Store{db: db, next: map[string]uint64{}, now: time.Now}, nil
}

func (s *Store) Append(room, text string) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := checkRoom(room); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.next[room]
	if !ok {
		last, err := s.lastSeq(room)
		if err != nil {
			return err
		}
		seq = last
	}
	val, err := json.Marshal(Entry{TS: s.now().UTC(), Room: room, Text: text})
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := s.db.Set(key(room, seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	s.next[room] = seq + 1
	return nil
}

// Recent returns the text of the newest limit entries of room, oldest first.
func (s *Store) Recent(room string, limit int) ([]string, error) {
	entries, err := s.Entries(room, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out, nil
}

// Entries returns the newest limit entries of room, oldest first. A limit
// of zero or less returns every entry.
func (s *Store) Entries(room string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if err := checkRoom(room); err != nil {
		return nil, err
	}
	lower, upper := bounds(room)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	out := make([]Entry, 0, 64)
	for valid := it.Last(); valid; valid = it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err == nil {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Rooms lists every room with at least one stored entry, in key order.
func (s *Store) Rooms() ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	it, err := s.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var rooms []string
	for valid := it.First(); valid; {
		k := it.Key()
		i := strings.IndexByte(string(k), 0)
		if i <= 0 {
			valid = it.Next()
			continue
		}
		room := string(k[:i])
		rooms = append(rooms, room)
		_, upper := bounds(room)
		valid = it.SeekGE(upper)
	}
	return rooms, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// lastSeq returns the sequence following the newest stored entry of room.
func (s *Store) lastSeq(room string) (uint64, error) {
	lower, upper := bounds(room)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()
	if it.Last() {
		k := it.Key()
		if len(k) >= 8 {
			return binary.BigEndian.Uint64(k[len(k)-8:]) + 1, nil
		}
	}
	return 0, nil
}

func checkRoom(room string) error {
	if room == "" || strings.IndexByte(room, 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return nil
}

func key(room string, seq uint64) []byte {
	k := make([]byte, 0, len(room)+9)
	k = append(k, room...)
	k = append(k, 0)
	return binary.BigEndian.AppendUint64(k, seq)
}

// bounds returns the key range [room\x00, room\x01) holding room's entries.
func bounds(room string) (lower, upper []byte) {
	lower = append([]byte(room), 0)
	upper = append([]byte(room), 1)
	return lower, upper
}
