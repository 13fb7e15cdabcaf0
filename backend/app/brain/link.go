package brain

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"job-relay/backend/app/session"
)

// DefaultTargetPattern matches LinkedIn company pages.
const DefaultTargetPattern = `https?://(?:[a-z]{2,3}\.)?linkedin\.com/company/[A-Za-z0-9_%.\-]+`

// LinkFollowerConfig configures LinkFollower.
type LinkFollowerConfig struct {
	// Pattern selects the link to follow inside a dom_snapshot payload.
	Pattern string
	// ScrollCount is how many SCROLL commands follow a navigation_complete.
	ScrollCount int
	// ScrollInterval spaces the SCROLL burst.
	ScrollInterval time.Duration
}

// LinkFollower is a minimal reference engine: it navigates to the first link
// in a page snapshot that matches Pattern, then, once the agent reports the
// navigation as complete, emits a timed burst of SCROLL commands.
type LinkFollower struct {
	pattern  *regexp.Regexp
	count    int
	interval time.Duration
	log      zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	last   map[string]string
	bursts map[string]context.CancelFunc
}

// NewLinkFollower compiles the pattern and applies defaults.
func NewLinkFollower(cfg LinkFollowerConfig, log zerolog.Logger) (*LinkFollower, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultTargetPattern
	}
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("brain: compile target pattern: %w", err)
	}
	if cfg.ScrollCount <= 0 {
		cfg.ScrollCount = 5
	}
	if cfg.ScrollInterval <= 0 {
		cfg.ScrollInterval = 2 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &LinkFollower{
		pattern:  re,
		count:    cfg.ScrollCount,
		interval: cfg.ScrollInterval,
		log:      log,
		base:     base,
		cancel:   cancel,
		last:     make(map[string]string),
		bursts:   make(map[string]context.CancelFunc),
	}, nil
}

// Handle implements Engine.
func (e *LinkFollower) Handle(ctx context.Context, ev session.Event, sink Sink) error {
	switch ev.Kind {
	case session.KindDOMSnapshot:
		return e.follow(ctx, ev, sink)
	case session.KindNavigationComplete:
		e.startBurst(ev.DeviceID, sink)
	}
	return nil
}

// Target extracts the link that would be followed from a snapshot payload.
// Payloads are sometimes JSON-encoded HTML, so escaped slashes are undone first.
func (e *LinkFollower) Target(payload string) string {
	payload = strings.ReplaceAll(payload, `\/`, "/")
	m := e.pattern.FindString(payload)
	if m == "" {
		return ""
	}
	return strings.TrimRight(m, "/.") + "/"
}

func (e *LinkFollower) follow(ctx context.Context, ev session.Event, sink Sink) error {
	target := e.Target(ev.Payload)
	if target == "" {
		return nil
	}

	// claim the target before submitting so concurrent snapshots of the same
	// page produce one NAVIGATE
	e.mu.Lock()
	prev, seen := e.last[ev.DeviceID]
	if seen && prev == target {
		e.mu.Unlock()
		return nil
	}
	e.last[ev.DeviceID] = target
	e.mu.Unlock()

	cmd, err := session.NewCommand(session.ActionNavigate, target)
	if err != nil {
		e.release(ev.DeviceID, target, prev, seen)
		return err
	}
	outcome, err := sink.Submit(ctx, ev.DeviceID, cmd)
	if err != nil {
		e.release(ev.DeviceID, target, prev, seen)
		return fmt.Errorf("brain: submit navigate: %w", err)
	}
	if outcome != session.OutcomeQueued {
		e.release(ev.DeviceID, target, prev, seen)
	}
	return nil
}

// release undoes a claim that did not lead to a queued command, unless a
// newer target has replaced it meanwhile.
func (e *LinkFollower) release(deviceID, target, prev string, hadPrev bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last[deviceID] != target {
		return
	}
	if hadPrev {
		e.last[deviceID] = prev
	} else {
		delete(e.last, deviceID)
	}
}

// startBurst replaces any running burst for the device.
func (e *LinkFollower) startBurst(deviceID string, sink Sink) {
	e.mu.Lock()
	if stop, ok := e.bursts[deviceID]; ok {
		stop()
	}
	ctx, stop := context.WithCancel(e.base)
	e.bursts[deviceID] = stop
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer stop()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for sent := 0; sent < e.count; {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			cmd, err := session.NewCommand(session.ActionScroll, "")
			if err != nil {
				e.log.Warn().Err(err).Str("device", deviceID).Msg("scroll command")
				return
			}
			if _, err := sink.Submit(ctx, deviceID, cmd); err != nil {
				e.log.Warn().Err(err).Str("device", deviceID).Msg("submit scroll")
				return
			}
			sent++
		}
	}()
}

// Forget drops per-device memory, e.g. when the relay evicts the device.
func (e *LinkFollower) Forget(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.last, deviceID)
	if stop, ok := e.bursts[deviceID]; ok {
		stop()
		delete(e.bursts, deviceID)
	}
}

// Close stops all running bursts and waits for them.
func (e *LinkFollower) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}
