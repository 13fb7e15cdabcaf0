package command

import (
	"context"

	"job-relay/agent/internal/relayclient"
)

// Reporter sends an event back to the relay over whichever transport
// delivered the command.
type Reporter interface {
	Report(kind, data string) error
}

type Handler interface {
	Handle(ctx context.Context, cmd relayclient.Command, r Reporter) error
}

type HandlerFunc func(ctx context.Context, cmd relayclient.Command, r Reporter) error

func (f HandlerFunc) Handle(ctx context.Context, cmd relayclient.Command, r Reporter) error {
	return f(ctx, cmd, r)
}
