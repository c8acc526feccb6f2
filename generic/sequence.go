package generic

import "strconv"

// NextSequence returns the next code number after the greatest existing code.
//
// Codes whose length differs from format, that contain anything but the
// digits 0-9 (signs included), or that exceed max are ignored. A greatest code equal to max yields max, one below
// min yields min, and no usable code at all yields min. The result is not
// checked against existing codes: a min fallback may collide with a code
// that was ignored, so callers registering new codes must check for
// duplicates themselves.
func NextSequence(format string, min, max int64, existing []string) int64 {
	found := false
	var greatest int64
	for _, code := range existing {
		if len(code) != len(format) || !digitsOnly(code) {
			continue
		}
		n, err := strconv.ParseInt(code, 10, 64)
		if err != nil || n > max {
			continue
		}
		if !found || n > greatest {
			greatest, found = n, true
		}
	}
	switch {
	case !found:
		return min
	case greatest == max:
		return max
	case greatest < min:
		return min
	default:
		return greatest + 1
	}
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// FormatSequence pads n with zeros to the width of format.
func FormatSequence(format string, n int64) string {
	s := strconv.FormatInt(n, 10)
	for len(s) < len(format) {
		s = "0" + s
	}
	return s
}
