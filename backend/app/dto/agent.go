package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"job-relay/backend/app/session"
)

// ErrInvalidEvent wraps every rejection of an inbound agent report.
var ErrInvalidEvent = errors.New("invalid agent event")

// AgentDataRequest is the body of POST /agent/data and the payload of an
// agent_data push frame.
type AgentDataRequest struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"deviceId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp *float64        `json:"timestamp,omitempty"`
}

// DecodeAgentData parses and validates a report body.
func DecodeAgentData(body []byte) (AgentDataRequest, error) {
	var req AgentDataRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return req, req.Validate()
}

// Validate checks the fields the relay depends on. data is left alone.
func (r AgentDataRequest) Validate() error {
	if strings.TrimSpace(r.DeviceID) == "" {
		return fmt.Errorf("%w: deviceId is required", ErrInvalidEvent)
	}
	if !session.EventKind(r.Type).Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, r.Type)
	}
	if r.Timestamp != nil {
		ts := *r.Timestamp
		if ts < 0 || ts >= math.MaxInt64 || math.IsNaN(ts) || math.IsInf(ts, 0) {
			return fmt.Errorf("%w: bad timestamp", ErrInvalidEvent)
		}
	}
	if _, err := r.payload(); err != nil {
		return err
	}
	return nil
}

// payload returns data as an uninterpreted string: a JSON string is unquoted,
// any other JSON value is kept verbatim, null or absent becomes "".
func (r AgentDataRequest) payload() (string, error) {
	raw := bytes.TrimSpace(r.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: data: %v", ErrInvalidEvent, err)
		}
		return s, nil
	}
	return string(raw), nil
}

// ToEvent normalizes the request. now is used when no timestamp was sent.
func (r AgentDataRequest) ToEvent(now time.Time) (session.Event, error) {
	if err := r.Validate(); err != nil {
		return session.Event{}, err
	}
	p, _ := r.payload()
	at := now
	if r.Timestamp != nil && *r.Timestamp > 0 {
		at = time.UnixMilli(int64(*r.Timestamp))
	}
	return session.Event{
		Kind:      session.EventKind(r.Type),
		DeviceID:  strings.TrimSpace(r.DeviceID),
		Payload:   p,
		Timestamp: at.UTC(),
	}, nil
}
