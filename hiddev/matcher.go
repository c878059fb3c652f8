package hiddev

import (
	"fmt"
	"strings"
)

// MatchFunc decides whether an enumerated device path belongs to the
// given identity. The textual encoding of vendor/product inside a path
// is platform-specific, so the rule is a pluggable predicate; host
// backends that know the identity of every path they enumerate supply
// their own.
type MatchFunc func(path string, id Identity) bool

// DefaultMatch matches the two encodings seen in practice: the Windows
// HID path form "vid_vvvv&pid_pppp" and the "vvvv:pppp" address form.
// Matching is case-insensitive with exact 4-hex-digit fields.
func DefaultMatch(path string, id Identity) bool {
	p := strings.ToLower(path)
	vid := fmt.Sprintf("vid_%04x", id.VendorID)
	pid := fmt.Sprintf("pid_%04x", id.ProductID)
	if strings.Contains(p, vid) && strings.Contains(p, pid) {
		return true
	}
	return strings.Contains(p, id.String())
}

// Matcher scans the currently attached HID devices for an identity.
type Matcher struct {
	host  Host
	match MatchFunc
}

func NewMatcher(host Host, match MatchFunc) *Matcher {
	if match == nil {
		match = DefaultMatch
	}
	return &Matcher{host: host, match: match}
}

// Find returns the path of the first attached device matching id, in
// enumeration order. It returns ErrNotFound after exhausting the list.
func (m *Matcher) Find(id Identity) (string, error) {
	paths, err := m.host.EnumeratePaths()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, path := range paths {
		if m.match(path, id) {
			return path, nil
		}
	}
	return "", ErrNotFound
}
