package hidhost

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	hid "github.com/sstallion/go-hid"

	"github.com/kingcoyote/hid/hiddesc"
	"github.com/kingcoyote/hid/hiddev"
)

const maxDescriptorSize = 4096

// HidapiHost backs the core with hidapi via sstallion/go-hid. Report
// lengths are recovered from the raw report descriptor because hidapi
// does not expose them directly.
type HidapiHost struct {
	infos *xsync.MapOf[string, hid.DeviceInfo]
}

func NewHidapi() *HidapiHost {
	hid.Init()
	return &HidapiHost{
		infos: xsync.NewMapOf[string, hid.DeviceInfo](),
	}
}

func (h *HidapiHost) EnumeratePaths() ([]string, error) {
	var paths []string
	seen := make(map[string]struct{})
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		paths = append(paths, info.Path)
		seen[info.Path] = struct{}{}
		h.infos.Store(info.Path, *info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// forget devices that disappeared so Match stays truthful
	h.infos.Range(func(path string, _ hid.DeviceInfo) bool {
		if _, ok := seen[path]; !ok {
			h.infos.Delete(path)
		}
		return true
	})
	return paths, nil
}

// Match compares against the identity recorded for the path during the
// last enumeration, falling back to the textual rule for paths that
// were never enumerated through this host.
func (h *HidapiHost) Match(path string, id hiddev.Identity) bool {
	if info, ok := h.infos.Load(path); ok {
		return info.VendorID == id.VendorID && info.ProductID == id.ProductID
	}
	return hiddev.DefaultMatch(path, id)
}

func (h *HidapiHost) List() ([]DeviceInfo, error) {
	if _, err := h.EnumeratePaths(); err != nil {
		return nil, err
	}
	var out []DeviceInfo
	h.infos.Range(func(path string, info hid.DeviceInfo) bool {
		out = append(out, DeviceInfo{
			Path:         path,
			Identity:     hiddev.Identity{VendorID: info.VendorID, ProductID: info.ProductID},
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
		})
		return true
	})
	return out, nil
}

func (h *HidapiHost) Open(path string) (hiddev.Handle, error) {
	dev, err := hid.OpenPath(path)
	if err != nil {
		return nil, err
	}
	return &hidapiHandle{dev: dev}, nil
}

type hidapiHandle struct {
	dev      *hid.Device
	numbered bool
}

// Read adapts hidapi's framing to the id-prefixed handle convention:
// hidapi includes the report ID only on numbered devices, so reports
// from unnumbered devices get a zero ID byte prepended.
func (h *hidapiHandle) Read(buf []byte) (int, error) {
	if h.numbered {
		return h.dev.Read(buf)
	}
	if len(buf) == 0 {
		return 0, nil
	}
	n, err := h.dev.Read(buf[1:])
	if err != nil {
		return 0, err
	}
	buf[0] = 0
	return n + 1, nil
}

// Write passes the buffer through unchanged; hidapi expects the
// report ID in the first byte, zero for unnumbered devices.
func (h *hidapiHandle) Write(buf []byte) (int, error) {
	return h.dev.Write(buf)
}

func (h *hidapiHandle) Close() error {
	return h.dev.Close()
}

func (h *hidapiHandle) ReportLengths() (int, int, error) {
	buf := make([]byte, maxDescriptorSize)
	n, err := h.dev.GetReportDescriptor(buf)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read report descriptor: %w", err)
	}
	sizes, err := hiddesc.Sizes(buf[:n])
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse report descriptor: %w", err)
	}
	h.numbered = sizes.Numbered
	in, out := descriptorLengths(sizes)
	return in, out, nil
}

// descriptorLengths converts descriptor-derived report sizes to the
// id-prefixed handle convention. Numbered sizes already include the
// ID byte; unnumbered ones get it added.
func descriptorLengths(sizes hiddesc.ReportSizes) (int, int) {
	if sizes.Numbered {
		return sizes.Input, sizes.Output
	}
	return idPrefixedLength(sizes.Input), idPrefixedLength(sizes.Output)
}
