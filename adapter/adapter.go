// Package adapter enumerates the host's network interfaces and picks the
// one most likely to carry real internet traffic. VPN and virtual adapters
// systematically bias latency measurements high, so selection prefers
// wired physical interfaces with public addresses and only falls back to
// virtual ones when nothing else is usable.
package adapter

import (
	"net"
	"strings"

	"github.com/sirupsen/logrus"
)

// Info is an immutable snapshot of one usable IPv4 interface. It carries no
// persistent identity; the list is re-fetched every time a selection runs.
type Info struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	MAC         string  `json:"mac"`
	IPv4        string  `json:"ipv4"`
	SpeedMbps   float64 `json:"speed_mbps"`
	Wireless    bool    `json:"wireless"`
	DHCP        bool    `json:"dhcp"`
}

// Zero reports whether the Info is the zero value, meaning no usable
// adapter was found. Callers needing a bound source address must treat
// this as a hard failure.
func (i Info) Zero() bool { return i.IPv4 == "" }

// List enumerates operational, non-loopback interfaces that hold at least
// one IPv4 address. OS enumeration failure yields an empty list rather
// than an error; callers treat an empty list as "no usable adapter".
func List() []Info {
	ifaces, err := net.Interfaces()
	if err != nil {
		logrus.Warn("[ ADAPTER_ENUM ] interface enumeration failed: ", err)
		return nil
	}

	var out []Info
	for _, nif := range ifaces {
		if nif.Flags&net.FlagUp == 0 || nif.Flags&net.FlagLoopback != 0 {
			continue
		}
		addr := ipv4Addr(nif)
		if addr == "" {
			continue
		}
		out = append(out, Info{
			Name:        nif.Name,
			Description: describe(nif.Name),
			MAC:         strings.ToUpper(nif.HardwareAddr.String()),
			IPv4:        addr,
			SpeedMbps:   linkSpeedMbps(nif.Name),
			Wireless:    isWireless(nif.Name),
			DHCP:        true, // lease state is not portably visible; assume the common case
		})
	}
	return out
}

func ipv4Addr(nif net.Interface) string {
	addrs, err := nif.Addrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ip, _, err := net.ParseCIDR(a.String())
		if err != nil {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
