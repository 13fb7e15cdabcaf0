package session

import (
	"sort"
	"sync"
	"time"
)

// Device is the per-device state owned by the Registry. All fields are
// guarded by mu; the registry lock only protects the map itself.
type Device struct {
	id string

	mu         sync.Mutex
	firstSeen  time.Time
	lastSeen   time.Time
	lastEvent  EventKind
	eventCount int64
	queue      []Command
	pending    *Confirmation
	sub        *Subscription
	evicted    bool
}

// ID returns the device identity.
func (d *Device) ID() string { return d.id }

func (d *Device) info() DeviceInfo {
	out := DeviceInfo{
		ID:          d.id,
		FirstSeen:   d.firstSeen,
		LastSeen:    d.lastSeen,
		LastEvent:   d.lastEvent,
		EventCount:  d.eventCount,
		QueueLength: len(d.queue),
		Subscribed:  d.sub != nil,
	}
	if d.pending != nil {
		c := *d.pending
		out.Pending = &c
	}
	return out
}

// notify wakes the push subscriber, if any. Must be called with d.mu held.
func (d *Device) notify() {
	if d.sub != nil {
		d.sub.signal()
	}
}

// Registry is a concurrency-safe keyed store of devices. Unknown IDs are never
// rejected: the first reference creates an empty device.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device

	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		now:     time.Now,
	}
}

// GetOrCreate returns the device for id, creating it on first sight.
func (r *Registry) GetOrCreate(id string) *Device {
	r.mu.RLock()
	d, ok := r.devices[id]
	r.mu.RUnlock()
	if ok {
		return d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[id]; ok {
		return d
	}
	now := r.now()
	d = &Device{id: id, firstSeen: now, lastSeen: now}
	r.devices[id] = d
	return d
}

// with runs fn under the device lock, creating the device if needed. A device
// evicted between lookup and lock is replaced by a fresh one.
func (r *Registry) with(id string, fn func(d *Device)) {
	for {
		d := r.GetOrCreate(id)
		d.mu.Lock()
		if d.evicted {
			d.mu.Unlock()
			continue
		}
		fn(d)
		d.mu.Unlock()
		return
	}
}

// withExisting runs fn under the device lock only if the device is known.
func (r *Registry) withExisting(id string, fn func(d *Device)) bool {
	r.mu.RLock()
	d, ok := r.devices[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.evicted {
		return false
	}
	fn(d)
	return true
}

// list copies the current device pointers so callers can lock them one by one
// without holding the registry lock.
func (r *Registry) list() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Touch marks the device as seen now.
func (r *Registry) Touch(id string) {
	now := r.now()
	r.with(id, func(d *Device) {
		d.lastSeen = now
	})
}

// RecordEvent marks the device as seen and counts an inbound event.
func (r *Registry) RecordEvent(id string, kind EventKind) {
	now := r.now()
	r.with(id, func(d *Device) {
		d.lastSeen = now
		d.lastEvent = kind
		d.eventCount++
	})
}

// Get returns a copy of the device state without creating it.
func (r *Registry) Get(id string) (DeviceInfo, bool) {
	var info DeviceInfo
	ok := r.withExisting(id, func(d *Device) {
		info = d.info()
	})
	return info, ok
}

// Snapshot returns all devices, most recently seen first.
func (r *Registry) Snapshot() []DeviceInfo {
	devices := r.list()
	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		d.mu.Lock()
		if !d.evicted {
			out = append(out, d.info())
		}
		d.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

// Len returns the number of tracked devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// EvictIdle removes devices that have been idle for longer than idle and have
// no live push subscription. Queued commands of an evicted device are discarded.
func (r *Registry) EvictIdle(idle time.Duration) []Eviction {
	if idle <= 0 {
		return nil
	}
	now := r.now()
	var out []Eviction

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.devices {
		d.mu.Lock()
		idleFor := now.Sub(d.lastSeen)
		if d.sub == nil && idleFor > idle {
			d.evicted = true
			out = append(out, Eviction{DeviceID: id, IdleFor: idleFor, Discarded: len(d.queue)})
			delete(r.devices, id)
		}
		d.mu.Unlock()
	}
	return out
}
