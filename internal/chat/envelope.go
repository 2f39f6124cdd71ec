package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned by Decode for frames that are not a JSON
// object carrying a string "message" field.
var ErrMalformedFrame = errors.New("malformed chat frame")

// envelope is the wire shape of a chat frame in both directions.
type envelope struct {
	Message *string `json:"message"`
}

// Encode wraps text into a chat frame.
func Encode(text string) ([]byte, error) {
	b, err := json.Marshal(envelope{Message: &text})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}

// Decode extracts the message text from a chat frame.
func Decode(frame []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Message == nil {
		return "", fmt.Errorf("%w: missing message field", ErrMalformedFrame)
	}
	return *env.Message, nil
}
