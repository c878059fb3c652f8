// Package hidhost supplies the OS-interaction layer behind the
// hiddev.Host boundary: device enumeration, handle management and the
// capability query, backed by either hidapi or a pure-Go HID stack.
package hidhost

import "github.com/kingcoyote/hid/hiddev"

// DeviceInfo describes one enumerated HID device.
type DeviceInfo struct {
	Path         string          `json:"path"`
	Identity     hiddev.Identity `json:"identity"`
	Manufacturer string          `json:"manufacturer,omitempty"`
	Product      string          `json:"product,omitempty"`
}

// Host extends the core boundary with the identity knowledge gathered
// during enumeration. Match replaces the default path-substring
// predicate on platforms whose device paths do not encode the
// vendor/product pair.
type Host interface {
	hiddev.Host
	Match(path string, id hiddev.Identity) bool
	List() ([]DeviceInfo, error)
}

// New returns the host backend selected by name: "hidapi" (default)
// or "usbhid".
func New(name string) (Host, error) {
	switch name {
	case "", "hidapi":
		return NewHidapi(), nil
	case "usbhid":
		return NewUsbhid(), nil
	}
	return nil, errUnknownBackend(name)
}

type errUnknownBackend string

func (e errUnknownBackend) Error() string {
	return "unknown HID backend: " + string(e)
}

// idPrefixedLength converts a payload-only report length to the
// id-prefixed handle convention. Zero stays zero: the device has no
// reports in that direction.
func idPrefixedLength(n int) int {
	if n == 0 {
		return 0
	}
	return n + 1
}
