package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrorFrame is an error the relay sent back for a rejected frame.
type ErrorFrame struct{ Msg string }

func (e *ErrorFrame) Error() string { return "relay rejected frame: " + e.Msg }

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Stream is one push connection. Next must be called from a single
// goroutine; Report may be called concurrently with it.
type Stream struct {
	conn     *websocket.Conn
	deviceID string
	wmu      sync.Mutex
}

// Dial opens the push channel at /agent/ws.
func (c *Client) Dial(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/agent/ws"
	u.RawQuery = url.Values{"deviceId": {c.deviceID}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Stream{conn: conn, deviceID: c.deviceID}, nil
}

// Next blocks for the next command. Error frames come back as *ErrorFrame
// and leave the stream usable.
func (s *Stream) Next() (Command, error) {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return Command{}, err
		}
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			return Command{}, fmt.Errorf("decode frame: %w", err)
		}
		switch f.Type {
		case "command":
			var cmd Command
			if err := json.Unmarshal(f.Payload, &cmd); err != nil {
				return Command{}, fmt.Errorf("decode command: %w", err)
			}
			return cmd, nil
		case "error":
			return Command{}, &ErrorFrame{Msg: f.Error}
		}
	}
}

// Report sends one agent_data frame.
func (s *Stream) Report(kind, data string) error {
	payload, err := json.Marshal(newReport(kind, s.deviceID, data))
	if err != nil {
		return err
	}
	out, err := json.Marshal(frame{Type: "agent_data", Payload: payload})
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, out)
}

func (s *Stream) Close() error {
	s.wmu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.wmu.Unlock()
	return s.conn.Close()
}

// IsClosed reports whether err means the relay ended the stream normally,
// including when it was replaced by a newer connection.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}
