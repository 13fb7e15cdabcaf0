package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"job-relay/agent/internal/command"
	"job-relay/agent/internal/logger"
	"job-relay/agent/internal/relayclient"
)

const (
	maxDelay      = 30 * time.Second
	backoffFactor = 1.5
)

var ErrNotConnected = errors.New("not connected")

// Manager keeps a single push connection to the relay open, reconnecting
// with backoff, and feeds every received command to the dispatcher.
type Manager struct {
	client     *relayclient.Client
	dispatcher *command.Manager
	maxRetries int
	baseDelay  time.Duration

	mu     sync.Mutex
	stream *relayclient.Stream
}

func New(client *relayclient.Client, dispatcher *command.Manager, maxRetries int, baseDelay time.Duration) *Manager {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Manager{client: client, dispatcher: dispatcher, maxRetries: maxRetries, baseDelay: baseDelay}
}

// Connect dials until it succeeds, maxRetries is exhausted (0 retries
// forever) or ctx ends.
func (m *Manager) Connect(ctx context.Context) error {
	delay := m.baseDelay
	for attempt := 1; ; attempt++ {
		logger.Infof("Connecting to relay as %s (attempt #%d)...", m.client.DeviceID(), attempt)
		s, err := m.client.Dial(ctx)
		if err == nil {
			m.mu.Lock()
			m.stream = s
			m.mu.Unlock()
			logger.Info("Push channel open")
			return nil
		}
		logger.Errorf("Cannot connect (attempt #%d): %v", attempt, err)
		if m.maxRetries > 0 && attempt >= m.maxRetries {
			return fmt.Errorf("max retries reached: %w", err)
		}

		logger.Infof("Retrying in %v...", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * backoffFactor)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// Run receives until ctx ends, reconnecting whenever the stream breaks.
func (m *Manager) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = m.Close() })
	defer stop()

	for {
		m.mu.Lock()
		s := m.stream
		m.mu.Unlock()
		if s == nil {
			if err := m.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			continue
		}

		cmd, err := s.Next()
		if err != nil {
			var ef *relayclient.ErrorFrame
			if errors.As(err, &ef) {
				logger.Warnf("Relay rejected a frame: %s", ef.Msg)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			if relayclient.IsClosed(err) {
				logger.Warn("Relay closed the push channel, reconnecting")
			} else {
				logger.Errorf("Receive failed: %v. Reconnecting...", err)
			}
			m.drop(s)
			continue
		}
		_ = m.dispatcher.Dispatch(ctx, cmd, m)
	}
}

// Report sends an event on the current stream.
func (m *Manager) Report(kind, data string) error {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.Report(kind, data)
}

func (m *Manager) drop(s *relayclient.Stream) {
	m.mu.Lock()
	if m.stream == s {
		m.stream = nil
	}
	m.mu.Unlock()
	_ = s.Close()
}

// Close closes the current stream, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	s := m.stream
	m.stream = nil
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}
