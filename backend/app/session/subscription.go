package session

import "sync"

// Subscription is a push connection's claim on a device's queue. C receives a
// wake-up whenever something may have become deliverable; Done is closed when
// the subscription is replaced by a newer connection or closed.
type Subscription struct {
	ID       string
	DeviceID string

	wake chan struct{}
	done chan struct{}
	once sync.Once
	reg  *Registry
}

// C returns the wake-up channel.
func (s *Subscription) C() <-chan struct{} { return s.wake }

// Done is closed once the subscription is no longer current.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) cancel() {
	s.once.Do(func() { close(s.done) })
}

// Close detaches the subscription from its device. Safe to call more than once.
func (s *Subscription) Close() {
	s.reg.withExisting(s.DeviceID, func(d *Device) {
		if d.sub == s {
			d.sub = nil
		}
	})
	s.cancel()
}

// Subscribe attaches a push connection to the device, replacing (and
// cancelling) any previous subscription. The new subscriber is woken at once so
// it can flush whatever is already deliverable.
func (r *Registry) Subscribe(deviceID, connID string) *Subscription {
	sub := &Subscription{
		ID:       connID,
		DeviceID: deviceID,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		reg:      r,
	}
	now := r.now()
	r.with(deviceID, func(d *Device) {
		if d.sub != nil {
			d.sub.cancel()
		}
		d.sub = sub
		d.lastSeen = now
		sub.signal()
	})
	return sub
}
