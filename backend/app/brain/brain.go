// Package brain is the boundary between the relay and the decision logic that
// turns agent reports into commands. The relay only feeds events in and accepts
// whatever commands come out; pacing and deduplication live on this side.
package brain

import (
	"context"

	"job-relay/backend/app/session"
)

// Sink accepts commands produced by an engine. Engines may call it during
// Handle or later, from their own goroutines.
type Sink interface {
	Submit(ctx context.Context, deviceID string, cmd session.Command) (session.Outcome, error)
}

// Engine consumes one normalized event and emits zero or more commands.
type Engine interface {
	Handle(ctx context.Context, ev session.Event, sink Sink) error
}

// Closer is implemented by engines that own background work.
type Closer interface {
	Close() error
}

// Noop produces nothing.
type Noop struct{}

func (Noop) Handle(context.Context, session.Event, Sink) error { return nil }

// Func adapts a function to Engine.
type Func func(ctx context.Context, ev session.Event, sink Sink) error

func (f Func) Handle(ctx context.Context, ev session.Event, sink Sink) error {
	return f(ctx, ev, sink)
}
