// Package hiddesc walks raw HID report descriptors to recover the
// report geometry a host needs before any I/O: the byte lengths of the
// device's input and output reports.
package hiddesc

// Short item prefixes. The low two bits of the prefix byte encode the
// payload size, bits 2-3 the item type (main/global/local) and the
// high nibble the tag itself, so constants carry only the upper six
// bits.
const (
	tagInput         tag = 0x80
	tagOutput        tag = 0x90
	tagFeature       tag = 0xB0
	tagCollection    tag = 0xA0
	tagEndCollection tag = 0xC0

	tagReportSize  tag = 0x74
	tagReportID    tag = 0x84
	tagReportCount tag = 0x94
	tagPush        tag = 0xA4
	tagPop         tag = 0xB4
)

// longItemPrefix introduces a long item; its payload length follows in
// the next byte. Long items carry no report geometry and are skipped.
const longItemPrefix = 0xFE

type tag uint8

func (t tag) prefix() tag {
	return t & 0xFC
}

// payloadSize returns the payload length in bytes encoded in the low
// two bits (0, 1, 2 or 4).
func (t tag) payloadSize() int {
	switch t & 0x03 {
	case 0:
		return 0
	case 1:
		return 1
	case 2:
		return 2
	default:
		return 4
	}
}
