package hidhost

import (
	"github.com/puzpuzpuz/xsync/v3"
	usbhid "rafaelmartins.com/p/usbhid"

	"github.com/kingcoyote/hid/hiddev"
)

// UsbhidHost backs the core with the pure-Go usbhid stack, which
// exposes report lengths without descriptor parsing.
type UsbhidHost struct {
	infos *xsync.MapOf[string, hiddev.Identity]
}

func NewUsbhid() *UsbhidHost {
	return &UsbhidHost{
		infos: xsync.NewMapOf[string, hiddev.Identity](),
	}
}

func (h *UsbhidHost) EnumeratePaths() ([]string, error) {
	devs, err := usbhid.Enumerate(nil)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(devs))
	seen := make(map[string]struct{}, len(devs))
	for _, d := range devs {
		paths = append(paths, d.Path())
		seen[d.Path()] = struct{}{}
		h.infos.Store(d.Path(), hiddev.Identity{VendorID: d.VendorId(), ProductID: d.ProductId()})
	}
	h.infos.Range(func(path string, _ hiddev.Identity) bool {
		if _, ok := seen[path]; !ok {
			h.infos.Delete(path)
		}
		return true
	})
	return paths, nil
}

func (h *UsbhidHost) Match(path string, id hiddev.Identity) bool {
	if known, ok := h.infos.Load(path); ok {
		return known == id
	}
	return hiddev.DefaultMatch(path, id)
}

func (h *UsbhidHost) List() ([]DeviceInfo, error) {
	devs, err := usbhid.Enumerate(nil)
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		out = append(out, DeviceInfo{
			Path:         d.Path(),
			Identity:     hiddev.Identity{VendorID: d.VendorId(), ProductID: d.ProductId()},
			Manufacturer: d.Manufacturer(),
			Product:      d.Product(),
		})
	}
	return out, nil
}

func (h *UsbhidHost) Open(path string) (hiddev.Handle, error) {
	dev, err := usbhid.Get(func(d *usbhid.Device) bool {
		return d.Path() == path
	}, true, false)
	if err != nil {
		return nil, err
	}
	return &usbhidHandle{dev: dev}, nil
}

type usbhidHandle struct {
	dev *usbhid.Device
}

// Read adapts usbhid's split-ID API to the id-prefixed handle
// convention: the report ID lands in the first byte, zero for devices
// without numbered reports.
func (h *usbhidHandle) Read(buf []byte) (int, error) {
	id, data, err := h.dev.GetInputReport()
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	buf[0] = id
	return copy(buf[1:], data) + 1, nil
}

// Write takes the report ID from the first byte, zero for devices
// without numbered reports.
func (h *usbhidHandle) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if err := h.dev.SetOutputReport(buf[0], buf[1:]); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (h *usbhidHandle) Close() error {
	return h.dev.Close()
}

// ReportLengths converts the library's payload-only lengths to the
// id-prefixed handle convention.
func (h *usbhidHandle) ReportLengths() (int, int, error) {
	in := idPrefixedLength(int(h.dev.GetInputReportLength()))
	out := idPrefixedLength(int(h.dev.GetOutputReportLength()))
	return in, out, nil
}
