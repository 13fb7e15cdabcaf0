// Package events publishes relay lifecycle events to a message bus so other
// services can observe traffic without polling the admin API.
package events

import (
	"context"
	"time"

	"job-relay/backend/app/session"
)

// Event topic constants
const (
	TopicEventReceived       = "relay.event.received"
	TopicCommandQueued       = "relay.command.queued"
	TopicCommandDropped      = "relay.command.dropped"
	TopicCommandDispatched   = "relay.command.dispatched"
	TopicConfirmationCleared = "relay.confirmation.cleared"
	TopicConfirmationExpired = "relay.confirmation.expired"
	TopicDeviceEvicted       = "relay.device.evicted"

	// TopicAll matches every relay topic.
	TopicAll = "relay.>"
)

// Event types

type EventReceived struct {
	DeviceID   string            `json:"device_id"`
	Kind       session.EventKind `json:"kind"`
	PayloadLen int               `json:"payload_len"`
	At         time.Time         `json:"at"`
}

type CommandQueued struct {
	DeviceID string          `json:"device_id"`
	Command  session.Command `json:"command"`
	Source   string          `json:"source"`
}

type CommandDropped struct {
	DeviceID string          `json:"device_id"`
	Command  session.Command `json:"command"`
	Source   string          `json:"source"`
}

type CommandDispatched struct {
	DeviceID  string            `json:"device_id"`
	Commands  []session.Command `json:"commands"`
	Transport string            `json:"transport"`
}

type ConfirmationCleared struct {
	DeviceID string          `json:"device_id"`
	Command  session.Command `json:"command"`
	URL      string          `json:"url,omitempty"`
	Forced   bool            `json:"forced,omitempty"`
}

type ConfirmationExpired struct {
	DeviceID string          `json:"device_id"`
	Command  session.Command `json:"command"`
}

type DeviceEvicted struct {
	DeviceID  string `json:"device_id"`
	IdleFor   string `json:"idle_for"`
	Discarded int    `json:"discarded"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
