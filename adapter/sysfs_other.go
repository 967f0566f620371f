//go:build !linux

package adapter

import "strings"

func linkSpeedMbps(name string) float64 { return 0 }

// Name-prefix heuristic for platforms without a sysfs equivalent.
func isWireless(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "wl") ||
		strings.HasPrefix(lower, "wi-fi") ||
		strings.HasPrefix(lower, "wlan") ||
		strings.Contains(lower, "wireless") ||
		strings.HasPrefix(lower, "en0") // apple: en0 is the builtin radio on laptops
}

func describe(name string) string { return name }
