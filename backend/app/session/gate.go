package session

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// OverlapPolicy decides what happens to a gated command submitted while
// another gated command is still outstanding for the same device.
type OverlapPolicy string

const (
	// OverlapDrop discards the newer command.
	OverlapDrop OverlapPolicy = "drop"
	// OverlapQueue keeps it behind the outstanding one.
	OverlapQueue OverlapPolicy = "queue"
)

// MatchMode decides which navigation_complete payloads clear a confirmation.
type MatchMode string

const (
	// MatchAny clears on any navigation_complete.
	MatchAny MatchMode = "any"
	// MatchExact requires the reported URL to equal the command value.
	MatchExact MatchMode = "exact"
	// MatchPrefix requires the reported URL to be the command value or to
	// continue it with a path, query or fragment.
	MatchPrefix MatchMode = "prefix"
)

// GateConfig holds the gate tunables. It can be swapped at runtime.
type GateConfig struct {
	GatedActions []string
	Overlap      OverlapPolicy
	Match        MatchMode
	// ConfirmTTL auto-clears a confirmation that was never acknowledged.
	// Zero disables expiry.
	ConfirmTTL time.Duration
}

// DefaultGateConfig gates NAVIGATE, drops overlapping directives, clears on
// any navigation_complete and expires confirmations after two minutes.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		GatedActions: []string{ActionNavigate},
		Overlap:      OverlapDrop,
		Match:        MatchAny,
		ConfirmTTL:   2 * time.Minute,
	}
}

// Validate checks enumerated fields.
func (c GateConfig) Validate() error {
	switch c.Overlap {
	case OverlapDrop, OverlapQueue:
	default:
		return fmt.Errorf("gate: unknown overlap policy %q", c.Overlap)
	}
	switch c.Match {
	case MatchAny, MatchExact, MatchPrefix:
	default:
		return fmt.Errorf("gate: unknown match mode %q", c.Match)
	}
	if c.ConfirmTTL < 0 {
		return fmt.Errorf("gate: negative confirm ttl %s", c.ConfirmTTL)
	}
	return nil
}

// ExpireFunc is called, outside any device lock, for every confirmation the
// gate clears because its TTL ran out.
type ExpireFunc func(deviceID string, c Confirmation)

// Gate wraps queue dispatch with the at-most-one-in-flight rule: once a gated
// command has been handed to a transport, nothing else is delivered to that
// device until the confirmation is cleared.
type Gate struct {
	reg *Registry

	mu       sync.RWMutex
	cfg      GateConfig
	gated    map[string]struct{}
	onExpire ExpireFunc

	now func() time.Time
}

// NewGate creates a gate over reg.
func NewGate(reg *Registry, cfg GateConfig) *Gate {
	g := &Gate{reg: reg, now: time.Now}
	g.Configure(cfg)
	return g
}

// Configure replaces the tunables. Invalid enum values fall back to defaults.
func (g *Gate) Configure(cfg GateConfig) {
	def := DefaultGateConfig()
	if cfg.Overlap == "" {
		cfg.Overlap = def.Overlap
	}
	if cfg.Match == "" {
		cfg.Match = def.Match
	}
	if len(cfg.GatedActions) == 0 {
		cfg.GatedActions = def.GatedActions
	}
	if err := cfg.Validate(); err != nil {
		cfg.Overlap, cfg.Match = def.Overlap, def.Match
		if cfg.ConfirmTTL < 0 {
			cfg.ConfirmTTL = 0
		}
	}
	gated := make(map[string]struct{}, len(cfg.GatedActions))
	for _, a := range cfg.GatedActions {
		gated[strings.ToUpper(strings.TrimSpace(a))] = struct{}{}
	}

	g.mu.Lock()
	g.cfg = cfg
	g.gated = gated
	g.mu.Unlock()
}

// Config returns the active tunables.
func (g *Gate) Config() GateConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// OnExpire registers the expiry callback.
func (g *Gate) OnExpire(fn ExpireFunc) {
	g.mu.Lock()
	g.onExpire = fn
	g.mu.Unlock()
}

type gateView struct {
	cfg      GateConfig
	gated    map[string]struct{}
	onExpire ExpireFunc
}

func (v gateView) isGated(action string) bool {
	_, ok := v.gated[strings.ToUpper(action)]
	return ok
}

func (g *Gate) view() gateView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return gateView{cfg: g.cfg, gated: g.gated, onExpire: g.onExpire}
}

// IsGated reports whether action belongs to the confirmation-requiring class.
func (g *Gate) IsGated(action string) bool {
	return g.view().isGated(action)
}

// expirePending clears a stale confirmation. Must be called with d.mu held.
func expirePending(d *Device, now time.Time) *Confirmation {
	if d.pending == nil || !d.pending.expired(now) {
		return nil
	}
	c := d.pending
	d.pending = nil
	if len(d.queue) > 0 {
		d.notify()
	}
	return c
}

func (v gateView) fireExpired(deviceID string, c *Confirmation) {
	if c != nil && v.onExpire != nil {
		v.onExpire(deviceID, *c)
	}
}

// Submit runs cmd through the gate. Non-gated commands are always queued.
// A gated command that overlaps an outstanding one is handled per the
// overlap policy; with OverlapDrop it is discarded and OutcomeDropped returned.
func (g *Gate) Submit(deviceID string, cmd Command) (Outcome, error) {
	if deviceID == "" {
		return "", ErrEmptyDeviceID
	}
	if cmd.Action == "" {
		return "", ErrEmptyAction
	}
	v := g.view()
	now := g.now()

	var (
		outcome Outcome
		expired *Confirmation
	)
	g.reg.with(deviceID, func(d *Device) {
		expired = expirePending(d, now)
		if v.isGated(cmd.Action) && v.cfg.Overlap == OverlapDrop && v.outstanding(d) {
			outcome = OutcomeDropped
			return
		}
		d.enqueue(cmd)
		outcome = OutcomeQueued
	})
	v.fireExpired(deviceID, expired)
	return outcome, nil
}

// outstanding reports whether a gated command is pending confirmation or
// queued and not yet dispatched. Must be called with d.mu held.
func (v gateView) outstanding(d *Device) bool {
	if d.pending != nil {
		return true
	}
	for _, c := range d.queue {
		if v.isGated(c.Action) {
			return true
		}
	}
	return false
}

// Drain hands the deliverable prefix of the device queue to a transport. It
// returns an empty slice while a confirmation is pending. Otherwise it takes
// commands from the head up to and including the first gated one, recording a
// confirmation for it in the same critical section.
func (g *Gate) Drain(deviceID string) []Command {
	v := g.view()
	now := g.now()

	out := []Command{}
	var expired *Confirmation
	g.reg.with(deviceID, func(d *Device) {
		expired = expirePending(d, now)
		if d.pending != nil || len(d.queue) == 0 {
			return
		}
		n := len(d.queue)
		for i, c := range d.queue {
			if v.isGated(c.Action) {
				n = i + 1
				conf := &Confirmation{Command: c, CreatedAt: now}
				if v.cfg.ConfirmTTL > 0 {
					conf.ExpiresAt = now.Add(v.cfg.ConfirmTTL)
				}
				d.pending = conf
				break
			}
		}
		out = d.take(n)
	})
	v.fireExpired(deviceID, expired)
	return out
}

// Confirm clears the device's pending confirmation if url satisfies the match
// mode. A missing or mismatching confirmation is a no-op.
func (g *Gate) Confirm(deviceID, url string) (Confirmation, bool) {
	v := g.view()
	var (
		cleared Confirmation
		ok      bool
	)
	g.reg.with(deviceID, func(d *Device) {
		if d.pending == nil || !matches(v.cfg.Match, d.pending.Command.Value, url) {
			return
		}
		cleared, ok = *d.pending, true
		d.pending = nil
		if len(d.queue) > 0 {
			d.notify()
		}
	})
	return cleared, ok
}

// Clear force-clears the pending confirmation regardless of match mode.
func (g *Gate) Clear(deviceID string) (Confirmation, bool) {
	var (
		cleared Confirmation
		ok      bool
	)
	g.reg.withExisting(deviceID, func(d *Device) {
		if d.pending == nil {
			return
		}
		cleared, ok = *d.pending, true
		d.pending = nil
		if len(d.queue) > 0 {
			d.notify()
		}
	})
	return cleared, ok
}

// Pending returns the outstanding confirmation, if any.
func (g *Gate) Pending(deviceID string) (Confirmation, bool) {
	var (
		c  Confirmation
		ok bool
	)
	g.reg.withExisting(deviceID, func(d *Device) {
		if d.pending != nil {
			c, ok = *d.pending, true
		}
	})
	return c, ok
}

// Requeue puts commands a transport failed to deliver back at the head of the
// queue, in order. If the pending confirmation refers to one of them it is
// dropped, since the agent never received that command.
func (g *Gate) Requeue(deviceID string, cmds []Command) {
	if len(cmds) == 0 {
		return
	}
	g.reg.with(deviceID, func(d *Device) {
		if d.pending != nil {
			for _, c := range cmds {
				if c.ID == d.pending.Command.ID {
					d.pending = nil
					break
				}
			}
		}
		d.pushFront(cmds)
	})
}

// Expire clears every confirmation whose TTL has run out and returns how many
// were cleared. Released devices with queued commands are woken.
func (g *Gate) Expire() int {
	v := g.view()
	now := g.now()
	n := 0
	for _, d := range g.reg.list() {
		d.mu.Lock()
		var c *Confirmation
		if !d.evicted {
			c = expirePending(d, now)
		}
		id := d.id
		d.mu.Unlock()
		if c != nil {
			n++
			v.fireExpired(id, c)
		}
	}
	return n
}

func matches(mode MatchMode, expected, reported string) bool {
	reported = strings.TrimSpace(reported)
	switch mode {
	case MatchExact:
		return reported == expected
	case MatchPrefix:
		base := strings.TrimRight(expected, "/")
		if base == "" || !strings.HasPrefix(reported, base) {
			return false
		}
		// the match has to end on a path, query or fragment boundary
		rest := reported[len(base):]
		return rest == "" || strings.ContainsRune("/?#", rune(rest[0]))
	default:
		return true
	}
}
