package agent

import (
	"time"

	"github.com/kingcoyote/hid/hiddev"
)

// Config points the agent at its data directory and the user-driven
// configuration file. The devices file is live-reloaded; Config itself
// is fixed at startup.
type Config struct {
	DataDir       string `json:"dataDir"`
	DevicesConfig string `json:"devicesConfig"`
}

// DevicesConfig is the content of the devices file.
type DevicesConfig struct {
	// Backend selects the OS HID backend: "hidapi" or "usbhid".
	Backend string `yaml:"backend"`
	// PollInterval is the hot-plug poll fallback cadence, as a
	// duration string. Defaults to one second.
	PollInterval string        `yaml:"pollInterval"`
	Devices      []DeviceEntry `yaml:"devices"`
}

type DeviceEntry struct {
	// ID is the "vvvv:pppp" vendor/product pair.
	ID   hiddev.Identity `yaml:"id"`
	Name string          `yaml:"name"`
}

func (c DevicesConfig) pollInterval() time.Duration {
	if c.PollInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}
