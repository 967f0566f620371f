//go:build linux

package adapter

import (
	"os"
	"strconv"
	"strings"
)

// linkSpeedMbps reads the negotiated link speed from sysfs. Interfaces
// without a PHY (and some wireless drivers) report nothing or -1; those
// come back as 0, meaning unknown.
func linkSpeedMbps(name string) float64 {
	data, err := os.ReadFile("/sys/class/net/" + name + "/speed")
	if err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func isWireless(name string) bool {
	_, err := os.Stat("/sys/class/net/" + name + "/wireless")
	return err == nil
}

func describe(name string) string {
	// Sysfs has no friendly description, the device name is the best we get.
	return name
}
