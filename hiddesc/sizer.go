package hiddesc

import (
	"encoding/binary"
	"fmt"
)

// ReportSizes is the report geometry of one device: the maximum byte
// length of each report kind across all report IDs, including the
// leading report ID byte when the device uses numbered reports.
type ReportSizes struct {
	Input   int
	Output  int
	Feature int

	// Numbered reports carry a one-byte report ID prefix on the wire.
	Numbered bool
}

// globalState holds the global items that survive between main items.
// Push/Pop snapshot and restore it.
type globalState struct {
	reportSize  uint32
	reportCount uint32
	reportID    uint8
}

type sizer struct {
	global      globalState
	globalStack []globalState
	numbered    bool

	// accumulated bit widths per report ID, per kind
	input   map[uint8]int
	output  map[uint8]int
	feature map[uint8]int
}

// Sizes parses a raw report descriptor and computes the device's
// report geometry. It fails on a truncated descriptor or an item it
// cannot classify.
func Sizes(descriptor []byte) (ReportSizes, error) {
	s := &sizer{
		input:   make(map[uint8]int),
		output:  make(map[uint8]int),
		feature: make(map[uint8]int),
	}
	if err := s.walk(descriptor); err != nil {
		return ReportSizes{}, err
	}
	sizes := ReportSizes{
		Input:    maxBytes(s.input),
		Output:   maxBytes(s.output),
		Feature:  maxBytes(s.feature),
		Numbered: s.numbered,
	}
	if s.numbered {
		if sizes.Input > 0 {
			sizes.Input++
		}
		if sizes.Output > 0 {
			sizes.Output++
		}
		if sizes.Feature > 0 {
			sizes.Feature++
		}
	}
	return sizes, nil
}

func (s *sizer) walk(data []byte) error {
	for i := 0; i < len(data); {
		prefix := data[i]
		i++
		if prefix == longItemPrefix {
			if i >= len(data) {
				return fmt.Errorf("truncated long item at offset %d", i-1)
			}
			skip := int(data[i]) + 1 // length byte + tag byte
			if i+skip > len(data) {
				return fmt.Errorf("truncated long item payload at offset %d", i)
			}
			i += skip
			continue
		}
		t := tag(prefix)
		n := t.payloadSize()
		if i+n > len(data) {
			return fmt.Errorf("truncated item %#02x at offset %d", prefix, i-1)
		}
		payload := data[i : i+n]
		i += n
		if err := s.item(t.prefix(), payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *sizer) item(t tag, payload []byte) error {
	switch t {
	case tagReportSize:
		s.global.reportSize = toUint32(payload)
	case tagReportCount:
		s.global.reportCount = toUint32(payload)
	case tagReportID:
		s.global.reportID = uint8(toUint32(payload))
		s.numbered = true
	case tagPush:
		s.globalStack = append(s.globalStack, s.global)
	case tagPop:
		n := len(s.globalStack)
		if n == 0 {
			return fmt.Errorf("pop with empty global stack")
		}
		s.global = s.globalStack[n-1]
		s.globalStack = s.globalStack[:n-1]
	case tagInput:
		s.input[s.global.reportID] += int(s.global.reportSize * s.global.reportCount)
	case tagOutput:
		s.output[s.global.reportID] += int(s.global.reportSize * s.global.reportCount)
	case tagFeature:
		s.feature[s.global.reportID] += int(s.global.reportSize * s.global.reportCount)
	}
	// every other item carries usage or unit information irrelevant to
	// report geometry
	return nil
}

func toUint32(payload []byte) uint32 {
	switch len(payload) {
	case 0:
		return 0
	case 1:
		return uint32(payload[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(payload))
	default:
		return binary.LittleEndian.Uint32(payload)
	}
}

func maxBytes(bits map[uint8]int) int {
	max := 0
	for _, b := range bits {
		if n := (b + 7) / 8; n > max {
			max = n
		}
	}
	return max
}
