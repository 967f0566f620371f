package adapter

import "strings"

// virtualKeywords flags adapters whose description names a known VPN or
// virtualization product. Matching is a case-sensitive substring test, the
// same best-effort heuristic the vendors' own installers are matched by.
// Unlisted products will slip through; that is accepted behaviour.
var virtualKeywords = []string{
	"VPN",
	"Tunnel",
	"TAP",
	"TUN",
	"Hamachi",
	"NordVPN",
	"OpenVPN",
	"WireGuard",
	"ZeroTier",
	"Tailscale",
	"Hyper-V",
	"VMware",
	"VirtualBox",
	"Docker",
	"Bluetooth",
	"Pseudo",
	"Loopback",
}

// virtualPrefixes are address pools commonly handed out by VPN clients.
// Legitimate ISP assignments inside these 10.x blocks will be misclassified;
// also accepted behaviour.
var virtualPrefixes = []string{
	"10.5.",
	"10.8.",
	"10.9.",
	"10.10.",
	"10.15.",
	"10.31.",
}

// IsVirtual classifies an adapter as virtual/VPN when either its description
// contains a known keyword or its address falls in a known VPN pool.
func IsVirtual(a Info) bool {
	for _, kw := range virtualKeywords {
		if strings.Contains(a.Description, kw) || strings.Contains(a.Name, kw) {
			return true
		}
	}
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(a.IPv4, prefix) {
			return true
		}
	}
	return false
}

// IsPrivate reports whether addr is a loopback, RFC1918 or link-local
// address. Used both for adapter selection (public beats private) and by
// the prober's sub-millisecond sanity check.
func IsPrivate(addr string) bool {
	if addr == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(addr, "10.") ||
		strings.HasPrefix(addr, "192.168.") ||
		strings.HasPrefix(addr, "169.254.") {
		return true
	}
	// 172.16.0.0/12
	if strings.HasPrefix(addr, "172.") {
		rest := addr[len("172."):]
		dot := strings.IndexByte(rest, '.')
		if dot > 0 {
			switch rest[:dot] {
			case "16", "17", "18", "19", "20", "21", "22", "23",
				"24", "25", "26", "27", "28", "29", "30", "31":
				return true
			}
		}
	}
	return false
}
