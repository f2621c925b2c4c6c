package ocr

import "strings"

// snippet collapses whitespace and shortens text for logging.
func snippet(s string, max int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "…"
}
