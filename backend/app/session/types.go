// Package session holds the relay's per-device state: the registry of known
// devices, each device's outbound command queue and the confirmation gate that
// keeps at most one gated command in flight per device.
package session

import (
	"errors"
	"time"

	"job-relay/backend/app/idgen"
)

var (
	ErrEmptyDeviceID = errors.New("session: empty device id")
	ErrEmptyAction   = errors.New("session: empty command action")
)

// EventKind tags an inbound agent report.
type EventKind string

const (
	KindDOMSnapshot        EventKind = "dom_snapshot"
	KindJobsExtracted      EventKind = "jobs_extracted"
	KindEmailsFound        EventKind = "emails_found"
	KindNavigationComplete EventKind = "navigation_complete"
)

// Valid reports whether k is one of the kinds agents are allowed to send.
func (k EventKind) Valid() bool {
	switch k {
	case KindDOMSnapshot, KindJobsExtracted, KindEmailsFound, KindNavigationComplete:
		return true
	}
	return false
}

// Event is a normalized inbound report. Payload is never interpreted by the
// relay; only the decision engine looks inside it.
type Event struct {
	Kind      EventKind `json:"kind"`
	DeviceID  string    `json:"deviceId"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Known command actions. The set is open: any non-empty action is accepted.
const (
	ActionNavigate = "NAVIGATE"
	ActionScroll   = "SCROLL"
	ActionClick    = "CLICK"
)

// Command is an immutable directive for a device.
type Command struct {
	ID       string    `json:"id"`
	Action   string    `json:"action"`
	Value    string    `json:"value"`
	IssuedAt time.Time `json:"issuedAt"`
}

// NewCommand builds a command with a fresh ID.
func NewCommand(action, value string) (Command, error) {
	if action == "" {
		return Command{}, ErrEmptyAction
	}
	id, err := idgen.Generate(idgen.CommandPrefix)
	if err != nil {
		return Command{}, err
	}
	return Command{ID: id, Action: action, Value: value, IssuedAt: time.Now().UTC()}, nil
}

// Outcome is the result of submitting a command to the gate.
type Outcome string

const (
	OutcomeQueued  Outcome = "queued"
	OutcomeDropped Outcome = "dropped"
)

// Confirmation records a dispatched gated command awaiting navigation_complete.
type Confirmation struct {
	Command   Command   `json:"command"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

func (c *Confirmation) expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// DeviceInfo is a read-only copy of a device's state.
type DeviceInfo struct {
	ID          string        `json:"deviceId"`
	FirstSeen   time.Time     `json:"firstSeen"`
	LastSeen    time.Time     `json:"lastSeen"`
	LastEvent   EventKind     `json:"lastEvent,omitempty"`
	EventCount  int64         `json:"eventCount"`
	QueueLength int           `json:"queueLength"`
	Pending     *Confirmation `json:"pending,omitempty"`
	Subscribed  bool          `json:"subscribed"`
}

// Eviction describes a device removed by the idle reaper.
type Eviction struct {
	DeviceID  string
	IdleFor   time.Duration
	Discarded int
}
