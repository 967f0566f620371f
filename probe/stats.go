package probe

import "math"

// Statistics represent the outcome of one probe run against a single host.
// Latencies are in milliseconds. A Statistics value is built once by Probe
// and never mutated afterwards.
type Statistics struct {
	// Host is the name or literal address the probe was asked for.
	Host string `json:"host"`

	// IPAddr is the resolved IPv4 address, empty when resolution failed.
	IPAddr string `json:"ip_addr"`

	// Region is the tag copied from the originating catalog entry.
	Region string `json:"region,omitempty"`

	PacketsSent int     `json:"packets_sent"`
	PacketsRecv int     `json:"packets_recv"`
	PacketLoss  float64 `json:"packet_loss"`

	MinRtt float64 `json:"min_rtt_ms"`
	MaxRtt float64 `json:"max_rtt_ms"`
	AvgRtt float64 `json:"avg_rtt_ms"`

	// Jitter is the mean absolute deviation of the samples from their
	// average. Deviation from the mean, not standard deviation, so a single
	// outlier spike doesn't dominate the figure.
	Jitter float64 `json:"jitter_ms"`

	// Rtts holds every accepted sample in send order.
	Rtts []float64 `json:"rtts,omitempty"`
}

// finalize fills in the derived fields from the accepted samples. With zero
// samples min/max are forced to 0 so consumers never see sentinel values.
func (s *Statistics) finalize() {
	if s.PacketsSent > 0 {
		s.PacketLoss = 100 * (1 - float64(s.PacketsRecv)/float64(s.PacketsSent))
	} else {
		s.PacketLoss = 100
	}

	if len(s.Rtts) == 0 {
		s.MinRtt, s.MaxRtt, s.AvgRtt, s.Jitter = 0, 0, 0, 0
		return
	}

	min, max, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, rtt := range s.Rtts {
		if rtt < min {
			min = rtt
		}
		if rtt > max {
			max = rtt
		}
		sum += rtt
	}
	s.MinRtt = min
	s.MaxRtt = max
	s.AvgRtt = sum / float64(len(s.Rtts))

	if len(s.Rtts) > 1 {
		var dev float64
		for _, rtt := range s.Rtts {
			dev += math.Abs(rtt - s.AvgRtt)
		}
		s.Jitter = dev / float64(len(s.Rtts))
	}
}

// allLoss is the well-formed failure shape: resolution failures, missing
// source adapters and dead targets all report as total loss rather than as
// errors, since reporting bad connectivity is the whole point.
func allLoss(host, ip string) Statistics {
	return Statistics{Host: host, IPAddr: ip, PacketLoss: 100}
}
