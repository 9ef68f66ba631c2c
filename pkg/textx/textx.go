// Package textx provides small text utilities for diagnostics payloads:
// resolver error bodies and telemetry messages pass through here before
// they are logged or reported.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims
// surrounding whitespace. Error bodies from misbehaving sources can carry
// binary junk; sanitize before attaching them to errors or log records.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Truncate caps s at max runes, appending an ellipsis when it was cut.
// Non-positive max returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
