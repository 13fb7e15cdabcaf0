// Package relayclient talks to the relay over both agent transports.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Event kinds an agent may report.
const (
	KindDOMSnapshot        = "dom_snapshot"
	KindJobsExtracted      = "jobs_extracted"
	KindEmailsFound        = "emails_found"
	KindNavigationComplete = "navigation_complete"
)

type Command struct {
	ID       string    `json:"id"`
	Action   string    `json:"action"`
	Value    string    `json:"value"`
	IssuedAt time.Time `json:"issuedAt"`
}

type report struct {
	Type      string  `json:"type"`
	DeviceID  string  `json:"deviceId"`
	Data      string  `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

// StatusError is a non-2xx answer from the relay.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay: http %d: %s", e.Code, e.Msg)
}

type Client struct {
	base     string
	deviceID string
	http     *http.Client
}

func New(baseURL, deviceID string) *Client {
	return &Client{
		base:     strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) DeviceID() string { return c.deviceID }

func newReport(kind, deviceID, data string) report {
	return report{Type: kind, DeviceID: deviceID, Data: data, Timestamp: float64(time.Now().UnixMilli())}
}

// Report posts one event through POST /agent/data.
func (c *Client) Report(ctx context.Context, kind, data string) error {
	body, err := json.Marshal(newReport(kind, c.deviceID, data))
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/agent/data", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Poll drains the device's deliverable commands through GET /agent/poll.
func (c *Client) Poll(ctx context.Context) ([]Command, error) {
	u := c.base + "/agent/poll?deviceId=" + url.QueryEscape(c.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var cmds []Command
	if err := json.NewDecoder(resp.Body).Decode(&cmds); err != nil {
		return nil, fmt.Errorf("decode poll: %w", err)
	}
	return cmds, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{Code: resp.StatusCode, Msg: msg}
}
