//go:build !linux

package hotplug

import "context"

// runPlatform is a no-op outside Linux; the poll ticker carries the
// trigger alone.
func (m *Monitor) runPlatform(context.Context) {}
