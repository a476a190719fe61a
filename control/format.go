// Package control provides thin entity-controller façades over a
// radiosession.Session: a setter that mirrors a store field formats the
// value for the wire, optimistically patches the store so callers observe
// the new value immediately, then sends the command; if the radio rejects
// it, the setter re-issues the entity's subscription so the resulting
// status frame restores authoritative state (§4.5, §9).
package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwsl/radiosession/store"
)

// formatBool renders a boolean the way the control protocol expects: "1"
// or "0", never "true"/"false".
func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// formatInt renders an integer command argument.
func formatInt(n int) string { return strconv.Itoa(n) }

// formatMHz renders a frequency command argument canonicalized to 6
// decimal places, matching store.FormatMHz so a round-tripped value never
// drifts.
func formatMHz(mhz float64) string { return store.FormatMHz(mhz) }

// formatEnum lowercases an enum argument; the wire protocol's mode/profile
// tokens are case-sensitive lowercase.
func formatEnum(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// clampInt clamps n to [lo, hi].
func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// clampLevel clamps a 0..100 DSP/level argument.
func clampLevel(n int) int { return clampInt(n, 0, 100) }

// clampFilterSharpness clamps a 0..3 filter-sharpness argument.
func clampFilterSharpness(n int) int { return clampInt(n, 0, 3) }

// kv renders one "key=value" command token.
func kv(key, value string) string { return fmt.Sprintf("%s=%s", key, value) }
