package chat

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrEmptyHost   = errors.New("empty chat host")
	ErrEmptyRoom   = errors.New("empty room identifier")
	ErrInvalidRoom = errors.New("invalid room identifier")
)

// roomPath is the backend route a room connection is opened on.
const roomPath = "/ws/chat/%s/"

// Endpoint is the chat backend a widget connects to, the equivalent of the
// page host the browser widget derived its socket address from.
type Endpoint struct {
	Host   string
	Secure bool
}

// ParseEndpoint accepts either a bare host[:port] or an origin such as
// https://example.com. A scheme of https or wss forces secure.
func ParseEndpoint(host string, secure bool) (Endpoint, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Endpoint{}, ErrEmptyHost
	}
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return Endpoint{}, fmt.Errorf("parse host %q: %w", host, err)
		}
		switch u.Scheme {
		case "https", "wss":
			secure = true
		case "http", "ws":
		default:
			return Endpoint{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		host = u.Host
	}
	host = strings.TrimSuffix(host, "/")
	if host == "" || strings.ContainsAny(host, "/?#") {
		return Endpoint{}, fmt.Errorf("invalid host %q", host)
	}
	return Endpoint{Host: host, Secure: secure}, nil
}

// URL returns the socket address for room. The room is path-escaped so that
// identifiers containing reserved characters stay a single path segment.
func (e Endpoint) URL(room string) (string, error) {
	switch room {
	case "":
		return "", ErrEmptyRoom
	case ".", "..":
		// PathEscape leaves dot segments alone; they would climb out of the route.
		return "", fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	return scheme + "://" + e.Host + fmt.Sprintf(roomPath, url.PathEscape(room)), nil
}

// Origin is sent as the Origin header so origin-checking backends treat the
// client like the page that would normally host the widget.
func (e Endpoint) Origin() string {
	if e.Secure {
		return "https://" + e.Host
	}
	return "http://" + e.Host
}
