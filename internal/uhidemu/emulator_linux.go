//go:build linux

// Package uhidemu creates a synthetic HID device through the Linux
// uhid kernel module and feeds it periodic input reports, so the whole
// arrival, read and removal pipeline can be exercised without
// hardware.
package uhidemu

import (
	"context"
	"time"

	"github.com/psanford/uhid"
	"go.uber.org/zap"

	"github.com/kingcoyote/hid/hiddesc"
	"github.com/kingcoyote/hid/hiddev"
)

type Emulator struct {
	log      *zap.Logger
	name     string
	id       hiddev.Identity
	desc     []byte
	interval time.Duration
}

func New(log *zap.Logger, name string, id hiddev.Identity, descriptor []byte, interval time.Duration) *Emulator {
	return &Emulator{
		log:      log,
		name:     name,
		id:       id,
		desc:     descriptor,
		interval: interval,
	}
}

// Run creates the virtual device and injects a counter report every
// interval until the context is cancelled. The device disappears from
// enumeration when Run returns.
func (e *Emulator) Run(ctx context.Context) error {
	sizes, err := hiddesc.Sizes(e.desc)
	if err != nil {
		return err
	}

	dev, err := uhid.NewDevice(e.name, e.desc)
	if err != nil {
		return err
	}
	dev.Data.Bus = 0x03
	dev.Data.VendorID = uint32(e.id.VendorID)
	dev.Data.ProductID = uint32(e.id.ProductID)

	events, err := dev.Open(ctx)
	if err != nil {
		return err
	}
	defer dev.Close()
	e.log.Info("virtual device created",
		zap.String("name", e.name),
		zap.String("identity", e.id.String()),
		zap.Int("inputLength", sizes.Input))

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var seq byte
	report := make([]byte, sizes.Input)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Type == uhid.Output {
				e.log.Info("output report received", zap.Int("bytes", len(ev.Data)))
			}
		case <-ticker.C:
			for i := range report {
				report[i] = seq + byte(i)
			}
			seq++
			if err := dev.InjectEvent(report); err != nil {
				e.log.Warn("failed to inject input report", zap.Error(err))
			}
		}
	}
}
