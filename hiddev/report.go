package hiddev

// Report is a fixed-size byte buffer holding one input or output HID
// report. The buffer length is fixed at construction and never resized.
type Report struct {
	data []byte
}

// NewReport allocates a zeroed report of the given size.
func NewReport(size int) *Report {
	return &Report{data: make([]byte, size)}
}

// WrapReport wraps the given bytes verbatim, without copying.
func WrapReport(data []byte) *Report {
	return &Report{data: data}
}

// Bytes returns the underlying buffer. The buffer is only valid until
// the event handler it was delivered to returns.
func (r *Report) Bytes() []byte {
	return r.data
}

func (r *Report) Len() int {
	return len(r.data)
}

// ReportFactory produces the Report values handed to event handlers.
// A specialized device substitutes its own factory to deliver richer
// report types without replacing the device object.
type ReportFactory interface {
	NewInputReport(data []byte) *Report
	NewOutputReport(data []byte) *Report
}

// rawReports is the default factory. It wraps bytes verbatim.
type rawReports struct{}

func (rawReports) NewInputReport(data []byte) *Report  { return WrapReport(data) }
func (rawReports) NewOutputReport(data []byte) *Report { return WrapReport(data) }
