package hiddev

import "errors"

// Errors returned from this package may be tested with errors.Is.
var (
	// ErrNotFound reports that no attached device matched an identity.
	ErrNotFound = errors.New("device not found")

	// ErrConnectFailed reports that a device handle could not be
	// opened. It wraps the underlying OS error.
	ErrConnectFailed = errors.New("failed to open device")

	// ErrCapabilityQuery reports that a device opened but refused the
	// report-length query. The connection attempt is abandoned and the
	// handle released.
	ErrCapabilityQuery = errors.New("capability query failed")

	// ErrDisposed reports use of a device after Dispose.
	ErrDisposed = errors.New("device is disposed")
)
