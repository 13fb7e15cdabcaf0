package state

import "sync/atomic"

type appState struct {
	DeviceID   atomic.Value // string
	CurrentURL atomic.Value // string
	Received   atomic.Int64
}

var s appState

func SetDeviceID(id string) { s.DeviceID.Store(id) }
func GetDeviceID() string   { return load(&s.DeviceID) }

// SetCurrentURL records where the simulated browser last navigated.
func SetCurrentURL(u string) { s.CurrentURL.Store(u) }
func GetCurrentURL() string  { return load(&s.CurrentURL) }

// CountCommand bumps the received-command counter and returns the new total.
func CountCommand() int64 { return s.Received.Add(1) }
func Received() int64     { return s.Received.Load() }

func load(v *atomic.Value) string {
	if x := v.Load(); x != nil {
		if str, ok := x.(string); ok {
			return str
		}
	}
	return ""
}
