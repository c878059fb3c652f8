// Package hotplug turns OS device-topology signals into a single
// "re-check now" trigger. On Linux it listens to udev netlink events;
// a periodic poll is the portable fallback and also papers over missed
// notifications.
package hotplug

import (
	"context"
	"time"

	"go.uber.org/zap"
)

var defaultOptions = options{
	pollInterval: 1 * time.Second,
}

type options struct {
	pollInterval time.Duration
}

type Option func(*options)

func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

type Monitor struct {
	log     *zap.Logger
	notify  func()
	options options
}

// New creates a monitor that invokes notify on every suspected device
// change. notify must be safe to call from multiple goroutines.
func New(log *zap.Logger, notify func(), opts ...Option) *Monitor {
	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Monitor{log: log, notify: notify, options: o}
}

// Run blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	go m.runPlatform(ctx)

	ticker := time.NewTicker(m.options.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.notify()
		}
	}
}
