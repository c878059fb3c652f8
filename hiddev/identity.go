package hiddev

import "fmt"

// Identity identifies a device model by its USB vendor and product IDs.
// It is the equality key between device objects; connection state never
// participates in equality.
type Identity struct {
	VendorID  uint16
	ProductID uint16
}

func (i Identity) String() string {
	return fmt.Sprintf("%04x:%04x", i.VendorID, i.ProductID)
}

// ParseIdentity parses the "vvvv:pppp" hex form produced by String.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	_, err := fmt.Sscanf(s, "%04x:%04x", &id.VendorID, &id.ProductID)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid device identity %q: %w", s, err)
	}
	return id, nil
}

// UnmarshalYAML accepts the "vvvv:pppp" form in configuration files.
func (i *Identity) UnmarshalYAML(data []byte) error {
	s := string(data)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseIdentity(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
