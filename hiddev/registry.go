package hiddev

import (
	"sync"

	"go.uber.org/zap"
)

// Registry is an arena of live devices. Devices take an index on
// construction and give it back on Dispose; a single hot-plug
// notification re-checks every occupied slot.
type Registry struct {
	mu      sync.Mutex
	devices []*Device
	free    []int
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) add(d *Device) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.devices[idx] = d
		return idx
	}
	r.devices = append(r.devices, d)
	return len(r.devices) - 1
}

func (r *Registry) remove(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.devices) || r.devices[idx] == nil {
		return
	}
	r.devices[idx] = nil
	r.free = append(r.free, idx)
}

// Devices returns a snapshot of the live devices.
func (r *Registry) Devices() []*Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Notify re-checks the presence of every registered device. Connect
// failures are retried on the next notification, not surfaced here.
func (r *Registry) Notify() {
	for _, d := range r.Devices() {
		if err := d.CheckPresent(); err != nil {
			d.log.Debug("presence check failed", zap.Error(err))
		}
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry new devices join
// unless constructed with WithRegistry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NotifyPossibleDeviceChange is the process-wide hook for external
// hot-plug notification sources. Invoke it whenever the host signals a
// device-topology change.
func NotifyPossibleDeviceChange() {
	defaultRegistry.Notify()
}
