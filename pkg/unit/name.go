package unit

import (
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedName = errors.New("malformed unit name")

// Split validates a dotted unit name and returns its segments.
func Split(name string) ([]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is empty", ErrMalformedName)
	}
	segments := strings.Split(name, ".")
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment %d in %q", ErrMalformedName, i, name)
		}
		if !isIdentifier(seg) {
			return nil, fmt.Errorf("%w: invalid segment %q in %q", ErrMalformedName, seg, name)
		}
	}
	return segments, nil
}

// Validate reports whether name is a well-formed unit name.
func Validate(name string) error {
	_, err := Split(name)
	return err
}

// Join builds the unit name for the first n segments.
func Join(segments []string, n int) string {
	return strings.Join(segments[:n], ".")
}

// Base returns the top-level segment of name.
func Base(name string) string {
	base, _, _ := strings.Cut(name, ".")
	return base
}

// Parent returns the name one segment up, or "" for a top-level name.
func Parent(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return name[:idx]
}

// Leaf returns the last segment of name.
func Leaf(name string) string {
	return name[strings.LastIndexByte(name, '.')+1:]
}

func isIdentifier(seg string) bool {
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
		isDigit := c >= '0' && c <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !(isLetter || isDigit) {
			return false
		}
	}
	return seg != ""
}
