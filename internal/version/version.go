// Package version compares dotted-integer version strings such as "1.4.10".
package version

import (
	"strconv"
	"strings"
)

// Compare returns -1, 0 or 1 as a is older than, equal to, or newer than b.
//
// Both strings are split on "." and compared component by component as
// integers. A missing trailing component counts as 0, so "1.0" equals
// "1.0.0". A component that is not a non-negative integer also counts as 0.
func Compare(a, b string) int {
	pa := components(a)
	pb := components(b)
	n := max(len(pa), len(pb))
	for i := 0; i < n; i++ {
		x, y := at(pa, i), at(pb, i)
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}

// Newer reports whether candidate is strictly newer than current.
func Newer(candidate, current string) bool {
	return Compare(candidate, current) > 0
}

func components(v string) []uint64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ".")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

func at(parts []uint64, i int) uint64 {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}
