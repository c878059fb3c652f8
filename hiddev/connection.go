package hiddev

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// connection holds the open handle and the capabilities discovered at
// connect time. A connection exists only while the physical device is
// present; completions are keyed to the connection instance so that a
// stale read from a torn-down connection is never attributed to its
// replacement.
type connection struct {
	handle       Handle
	path         string
	inputLength  int
	outputLength int

	closed    atomic.Bool
	closeOnce sync.Once
}

// openConnection opens the device at path and negotiates its report
// lengths. The handle is released again if the capability query fails.
func openConnection(host Host, path string) (*connection, error) {
	handle, err := host.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, path, err)
	}
	in, out, err := handle.ReportLengths()
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCapabilityQuery, path, err)
	}
	return &connection{
		handle:       handle,
		path:         path,
		inputLength:  in,
		outputLength: out,
	}, nil
}

// Close releases the handle. It is idempotent; the in-flight read, if
// any, fails once the handle is gone and is discarded by the guard in
// the completion dispatcher.
func (c *connection) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.handle.Close()
	})
}
