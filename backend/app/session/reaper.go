package session

import (
	"time"

	"github.com/rs/zerolog"
)

// ReaperConfig configures the background sweeper.
type ReaperConfig struct {
	// IdleTimeout is how long a device without a push subscription may stay
	// silent before it is evicted. Default: 30 minutes.
	IdleTimeout time.Duration

	// SweepInterval is how often the reaper runs. Default: 30 seconds.
	SweepInterval time.Duration

	// OnEvict is called for each evicted device, outside any lock.
	OnEvict func(Eviction)
}

// Reaper periodically expires stale confirmations and evicts idle devices.
type Reaper struct {
	reg  *Registry
	gate *Gate
	cfg  ReaperConfig
	log  zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewReaper creates a reaper; call Start to run it.
func NewReaper(reg *Registry, gate *Gate, cfg ReaperConfig, log zerolog.Logger) *Reaper {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return &Reaper{reg: reg, gate: gate, cfg: cfg, log: log}
}

// Start launches the sweep loop.
func (r *Reaper) Start() {
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop()
	r.log.Info().
		Dur("idle_timeout", r.cfg.IdleTimeout).
		Dur("sweep_interval", r.cfg.SweepInterval).
		Msg("session reaper started")
}

// Stop shuts the loop down and waits for it.
func (r *Reaper) Stop() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	<-r.done
	r.stop, r.done = nil, nil
}

func (r *Reaper) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep runs one pass: expire confirmations, then evict idle devices.
func (r *Reaper) Sweep() (expired int, evicted []Eviction) {
	expired = r.gate.Expire()
	evicted = r.reg.EvictIdle(r.cfg.IdleTimeout)
	for _, ev := range evicted {
		r.log.Info().
			Str("device", ev.DeviceID).
			Dur("idle", ev.IdleFor).
			Int("discarded", ev.Discarded).
			Msg("device evicted")
		if r.cfg.OnEvict != nil {
			r.cfg.OnEvict(ev)
		}
	}
	if expired > 0 {
		r.log.Debug().Int("expired", expired).Msg("confirmations expired")
	}
	return expired, evicted
}
