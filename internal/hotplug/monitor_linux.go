//go:build linux

package hotplug

import (
	"context"

	"github.com/jochenvg/go-udev"
	"go.uber.org/zap"
)

// runPlatform streams udev netlink events and triggers a re-check for
// every hid/hidraw topology change. Errors degrade to poll-only
// operation.
func (m *Monitor) runPlatform(ctx context.Context) {
	u := udev.Udev{}
	monitor := u.NewMonitorFromNetlink("udev")
	if monitor == nil {
		m.log.Warn("udev monitor unavailable, falling back to polling")
		return
	}
	ch, err := monitor.DeviceChan(ctx)
	if err != nil {
		m.log.Warn("failed to open udev event channel, falling back to polling", zap.Error(err))
		return
	}
	m.log.Info("udev hot-plug monitor started")
	for {
		select {
		case <-ctx.Done():
			return
		case dev, ok := <-ch:
			if !ok {
				return
			}
			if dev == nil {
				continue
			}
			switch dev.Subsystem() {
			case "hid", "hidraw", "usb":
				m.log.Debug("udev event",
					zap.String("action", dev.Action()),
					zap.String("subsystem", dev.Subsystem()),
					zap.String("syspath", dev.Syspath()))
				m.notify()
			}
		}
	}
}
