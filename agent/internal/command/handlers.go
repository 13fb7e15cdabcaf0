package command

import (
	"context"
	"time"

	"job-relay/agent/internal/logger"
	"job-relay/agent/internal/relayclient"
	"job-relay/agent/internal/state"
)

type Options struct {
	// AutoConfirm reports navigation_complete as soon as a NAVIGATE lands.
	AutoConfirm bool
	// ConfirmDelay simulates page load time before confirming.
	ConfirmDelay time.Duration
}

// RegisterDefaults installs handlers for the built-in actions.
func RegisterDefaults(m *Manager, opts Options) {
	m.Register("NAVIGATE", navigateHandler{opts: opts})
	m.Register("SCROLL", HandlerFunc(scroll))
	m.Register("CLICK", HandlerFunc(click))
}

type navigateHandler struct{ opts Options }

func (h navigateHandler) Handle(ctx context.Context, cmd relayclient.Command, r Reporter) error {
	state.SetCurrentURL(cmd.Value)
	if !h.opts.AutoConfirm {
		return nil
	}
	if h.opts.ConfirmDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.opts.ConfirmDelay):
		}
	}
	logger.Infof("Navigation to %s complete, confirming", cmd.Value)
	return r.Report(relayclient.KindNavigationComplete, cmd.Value)
}

func scroll(_ context.Context, cmd relayclient.Command, _ Reporter) error {
	logger.Infof("Scrolling %s", state.GetCurrentURL())
	return nil
}

func click(_ context.Context, cmd relayclient.Command, _ Reporter) error {
	logger.Infof("Clicking %q on %s", cmd.Value, state.GetCurrentURL())
	return nil
}
