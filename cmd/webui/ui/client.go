package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"job-relay/backend/app/dto"
)

var ErrUnauthorized = errors.New("token rejected")

// Session talks to the relay's admin API with a bearer token.
type Session struct {
	Base  string
	Token string
	http  *http.Client
}

func NewSession(base, token string) *Session {
	return &Session{
		Base:  strings.TrimRight(base, "/"),
		Token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Session) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.Base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode/100 != 2:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login exchanges operator credentials for a token and returns a session
// that carries it.
func Login(ctx context.Context, base, username, password string) (*Session, error) {
	s := NewSession(base, "")
	var tok dto.TokenResponse
	err := s.do(ctx, http.MethodPost, "/auth/login", dto.LoginRequest{Username: username, Password: password}, &tok)
	if err != nil {
		return nil, err
	}
	s.Token = tok.AccessToken
	return s, nil
}

func (s *Session) Devices(ctx context.Context) ([]dto.DeviceSummary, error) {
	var out []dto.DeviceSummary
	err := s.do(ctx, http.MethodGet, "/admin/devices", nil, &out)
	return out, err
}

// ClearConfirmation force-releases the device's gate.
func (s *Session) ClearConfirmation(ctx context.Context, deviceID string) (dto.ClearConfirmationResponse, error) {
	var out dto.ClearConfirmationResponse
	err := s.do(ctx, http.MethodPost, "/admin/devices/"+url.PathEscape(deviceID)+"/confirmation/clear", nil, &out)
	return out, err
}

func (s *Session) SendCommand(ctx context.Context, deviceID, action, value string) (dto.CommandResponse, error) {
	var out dto.CommandResponse
	err := s.do(ctx, http.MethodPost, "/admin/command", dto.CommandRequest{DeviceID: deviceID, Action: action, Value: value}, &out)
	return out, err
}

// Queue returns undelivered commands plus the most recent journal entries.
func (s *Session) Queue(ctx context.Context, deviceID string, history int) (dto.QueueResponse, error) {
	q := url.Values{"deviceid": {deviceID}, "include_sent": {"true"}, "limit": {fmt.Sprint(history)}}
	var out dto.QueueResponse
	err := s.do(ctx, http.MethodGet, "/admin/command/queue?"+q.Encode(), nil, &out)
	return out, err
}

func (s *Session) Logs(ctx context.Context, deviceID string, limit int) ([]dto.AgentLogEntry, error) {
	q := url.Values{"deviceid": {deviceID}, "limit": {fmt.Sprint(limit)}}
	var out []dto.AgentLogEntry
	err := s.do(ctx, http.MethodGet, "/admin/logs?"+q.Encode(), nil, &out)
	return out, err
}
