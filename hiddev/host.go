package hiddev

import "io"

// Host is the OS-interaction boundary the driver core depends on.
// Implementations live in internal/hidhost; tests supply fakes.
type Host interface {
	// EnumeratePaths lists the paths of all HID devices currently
	// attached to the system. Each call performs a fresh enumeration
	// and releases any OS resources before returning.
	EnumeratePaths() ([]string, error)

	// Open acquires an exclusive handle for the device at path.
	Open(path string) (Handle, error)
}

// Handle is an open channel to one physical HID device. Read blocks
// until an input report is available and fills at most one report per
// call. Write sends one output report. Close releases the handle and
// unblocks any in-flight Read with an error.
//
// Report buffers carry the report ID in their first byte on both
// directions; devices without numbered reports use ID zero. Every
// implementation adapts its platform's framing to this convention.
type Handle interface {
	io.ReadWriteCloser

	// ReportLengths queries the device capabilities and returns the
	// input and output report lengths in bytes, including the leading
	// report ID byte. ReportLengths is called once, before the first
	// Read or Write.
	ReportLengths() (in int, out int, err error)
}
