package hosts

import (
	"fmt"
	"net/netip"
	"strings"
	"unicode"
)

// localhostAddress is accepted in the address column alongside IP literals.
const localhostAddress = "localhost"

// IsAddress reports whether s is an IPv4 or IPv6 literal or "localhost".
func IsAddress(s string) bool {
	if s == localhostAddress {
		return true
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// ValidateFields checks that fields would serialize to a line that parses
// back as the same entry.
func ValidateFields(f EntryFields) error {
	if hasSpace(f.Address) || !IsAddress(f.Address) {
		return fmt.Errorf("%w: address %q", ErrInvalidEntry, f.Address)
	}
	if err := validateName(f.Name); err != nil {
		return err
	}
	for _, alias := range f.Aliases {
		if err := validateName(alias); err != nil {
			return err
		}
	}
	if strings.ContainsAny(f.Comment, "\r\n") {
		return fmt.Errorf("%w: comment %q spans more than one line", ErrInvalidEntry, f.Comment)
	}
	return nil
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidEntry)
	case strings.HasPrefix(name, "#"):
		return fmt.Errorf("%w: name %q starts with a comment marker", ErrInvalidEntry, name)
	case hasSpace(name):
		return fmt.Errorf("%w: name %q contains whitespace", ErrInvalidEntry, name)
	}
	return nil
}

// hasSpace reports whether s contains any rune the parser splits fields on.
func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

// canonicalComment returns c as the parser would read it back after
// rendering: whitespace runs collapsed and a leading "#" ensured.
func canonicalComment(c string) string {
	fields := strings.Fields(c)
	if len(fields) == 0 {
		return ""
	}
	if !strings.HasPrefix(fields[0], "#") {
		fields = append([]string{"#"}, fields...)
	}
	return strings.Join(fields, " ")
}

func (e Entry) fields() EntryFields {
	return EntryFields{
		Address: e.Address,
		Name:    e.Name,
		Enabled: e.Enabled,
		Aliases: e.Aliases,
		Comment: e.Comment,
	}
}
