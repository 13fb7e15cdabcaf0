package command

import (
	"context"
	"fmt"
	"sync"

	"job-relay/agent/internal/logger"
	"job-relay/agent/internal/relayclient"
	"job-relay/agent/internal/state"
)

// Manager routes commands to the handler registered for their action.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
	seen     []relayclient.Command
}

func NewManager() *Manager {
	return &Manager{handlers: map[string]Handler{}, fallback: HandlerFunc(logOnly)}
}

func (m *Manager) Register(action string, h Handler) {
	m.mu.Lock()
	m.handlers[action] = h
	m.mu.Unlock()
}

// Format renders a human-friendly line for a command.
func Format(cmd relayclient.Command) string {
	if cmd.Value == "" {
		return fmt.Sprintf("%s id=%s", cmd.Action, cmd.ID)
	}
	return fmt.Sprintf("%s %s id=%s", cmd.Action, cmd.Value, cmd.ID)
}

// Dispatch runs the handler for cmd. Unknown actions are logged and skipped.
func (m *Manager) Dispatch(ctx context.Context, cmd relayclient.Command, r Reporter) error {
	m.mu.Lock()
	h, ok := m.handlers[cmd.Action]
	if !ok {
		h = m.fallback
	}
	m.seen = append(m.seen, cmd)
	m.mu.Unlock()

	n := state.CountCommand()
	logger.Infof("Received command #%d: %s", n, Format(cmd))
	if err := h.Handle(ctx, cmd, r); err != nil {
		logger.Errorf("Command %s failed: %v", cmd.ID, err)
		return fmt.Errorf("%s: %w", cmd.Action, err)
	}
	return nil
}

// Seen returns every command dispatched so far, in order.
func (m *Manager) Seen() []relayclient.Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]relayclient.Command(nil), m.seen...)
}

func logOnly(_ context.Context, cmd relayclient.Command, _ Reporter) error {
	logger.Warnf("No handler for %s, ignoring", cmd.Action)
	return nil
}
