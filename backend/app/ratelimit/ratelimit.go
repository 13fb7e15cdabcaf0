// Package ratelimit throttles inbound agent reports per device.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// PerDevice keeps one token bucket per device id.
type PerDevice struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New allows perMinute events per device with the given burst. perMinute <= 0
// disables limiting.
func New(perMinute, burst int) *PerDevice {
	if burst <= 0 {
		burst = perMinute
	}
	return &PerDevice{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether one more event from deviceID may be processed now.
func (p *PerDevice) Allow(deviceID string) bool {
	if p == nil || p.limit <= 0 {
		return true
	}
	p.mu.Lock()
	l, ok := p.limiters[deviceID]
	if !ok {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[deviceID] = l
	}
	p.mu.Unlock()
	return l.Allow()
}

// Forget drops the device's bucket.
func (p *PerDevice) Forget(deviceID string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.limiters, deviceID)
	p.mu.Unlock()
}
