package diag

import (
	"strings"
	"time"

	"netqual/adapter"
	"netqual/bufferbloat"
	"netqual/probe"
)

// Snapshot is the single artifact a diagnostic run produces. It is built
// incrementally by the orchestrator and handed to the reporting layer
// complete; nothing mutates it afterwards. Server entries preserve catalog
// order.
type Snapshot struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Primary  adapter.Info   `json:"primary_adapter"`
	Adapters []adapter.Info `json:"adapters"`

	Servers []probe.Statistics `json:"servers"`

	HasHighLatency      bool `json:"has_high_latency"`
	HasHighJitter       bool `json:"has_high_jitter"`
	HasPacketLoss       bool `json:"has_packet_loss"`
	PossibleBufferbloat bool `json:"possible_bufferbloat"`

	RegionAvgMs map[string]float64 `json:"region_avg_ms"`

	Bufferbloat *bufferbloat.Outcome `json:"bufferbloat,omitempty"`

	Summary string `json:"summary"`
}

// buildSummary turns the computed flags into one free-text paragraph.
// Partial failures only drop their clause; a clean run reads as exactly
// that rather than as an error.
func buildSummary(s Snapshot) string {
	var clauses []string

	if s.Primary.Zero() {
		clauses = append(clauses, "No usable network adapter was found; measurements could not be taken.")
	}
	if s.HasHighLatency {
		clauses = append(clauses, "High latency (over 100 ms average) to one or more test servers.")
	}
	if s.HasHighJitter {
		clauses = append(clauses, "High jitter (over 20 ms) detected; real-time applications may stutter.")
	}
	if s.HasPacketLoss {
		clauses = append(clauses, "Packet loss observed against multiple servers, suggesting a network-wide problem.")
	}
	if s.PossibleBufferbloat {
		clauses = append(clauses, "Possible bufferbloat: latency rises sharply when the connection is under load.")
	}

	if len(clauses) == 0 {
		return "No significant network issues detected."
	}
	return strings.Join(clauses, " ")
}
