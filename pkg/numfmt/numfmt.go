// Package numfmt parses the numeric literal syntax accepted on the wbtool
// command line: 0x/0X hex, 0b/0B binary, leading-zero octal, and decimal.
package numfmt

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse parses s as a 64-bit unsigned value using the CLI's number syntax.
// strconv.ParseUint's base-0 handling already covers 0x/0X and leading-zero
// octal; only the 0b/0B binary prefix needs spelling out by hand.
func Parse(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("numfmt: empty number")
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if strings.Contains(s, "_") {
		return 0, fmt.Errorf("numfmt: invalid number %q: digit separators are not accepted", s)
	}
	var v uint64
	var err error
	switch {
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		v, err = strconv.ParseUint(s[2:], 2, 64)
	default:
		v, err = strconv.ParseUint(s, 0, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("numfmt: invalid number %q: %w", s, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// Parse32 is Parse truncated to a 32-bit bus address or value.
func Parse32(s string) (uint32, error) {
	v, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
