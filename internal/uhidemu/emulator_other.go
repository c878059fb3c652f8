//go:build !linux

package uhidemu

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kingcoyote/hid/hiddev"
)

type Emulator struct{}

func New(*zap.Logger, string, hiddev.Identity, []byte, time.Duration) *Emulator {
	return &Emulator{}
}

func (e *Emulator) Run(context.Context) error {
	return errors.New("device emulation requires Linux uhid support")
}
