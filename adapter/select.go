package adapter

import "github.com/sirupsen/logrus"

// SelectPrimary picks the single interface most representative of the
// user's real connection. Priority inside the physical set: first wired
// adapter with a public address, then first wired adapter, then first
// wireless adapter. Only when no physical adapter exists at all does a
// virtual one get used, logged as a degraded-accuracy condition. Returns
// the zero Info when nothing is usable.
func SelectPrimary(adapters []Info) Info {
	var physical, virtual []Info
	for _, a := range adapters {
		if IsVirtual(a) {
			virtual = append(virtual, a)
		} else {
			physical = append(physical, a)
		}
	}

	for _, a := range physical {
		if !a.Wireless && !IsPrivate(a.IPv4) {
			return a
		}
	}
	for _, a := range physical {
		if !a.Wireless {
			return a
		}
	}
	for _, a := range physical {
		if a.Wireless {
			return a
		}
	}

	if len(virtual) > 0 {
		logrus.Warn("[ ADAPTER_FALLBACK ] only virtual/VPN adapters available, measurements will include tunnel overhead: ", virtual[0].Name)
		return virtual[0]
	}

	logrus.Warn("[ ADAPTER_FALLBACK ] no usable network adapter found")
	return Info{}
}
