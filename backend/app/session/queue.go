package session

// The command queue lives on the Device and is only touched with d.mu held.
// Transports reach it through the Gate, which decides how much of it may be
// handed out.

// enqueue appends cmd. Order is strict FIFO and the queue never deduplicates.
func (d *Device) enqueue(cmd Command) {
	d.queue = append(d.queue, cmd)
	d.notify()
}

// take removes and returns the first n commands.
func (d *Device) take(n int) []Command {
	if n > len(d.queue) {
		n = len(d.queue)
	}
	out := append([]Command{}, d.queue[:n]...)
	d.queue = append([]Command(nil), d.queue[n:]...)
	return out
}

// pushFront puts cmds back at the head, in order.
func (d *Device) pushFront(cmds []Command) {
	q := make([]Command, 0, len(cmds)+len(d.queue))
	q = append(q, cmds...)
	d.queue = append(q, d.queue...)
}

// Pending returns a copy of the undelivered commands without removing them.
func (r *Registry) Pending(deviceID string) []Command {
	out := []Command{}
	r.withExisting(deviceID, func(d *Device) {
		out = append(out, d.queue...)
	})
	return out
}
