// Package diag runs the full diagnostic suite: adapter selection, one probe
// per catalog server, flag evaluation, optional bufferbloat testing and the
// final human-readable issue summary.
package diag

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"netqual/adapter"
	"netqual/bufferbloat"
	"netqual/catalog"
	"netqual/load"
	"netqual/probe"
)

const (
	highLatencyMs    = 100
	highJitterMs     = 20
	lossThresholdPct = 1.0

	// One lossy server is noise; a network-wide problem needs corroboration.
	minLossyServers = 2

	defaultPingCount   = 4
	defaultPingTimeout = time.Second
)

// Prober is the slice of the probe API the orchestrator drives.
type Prober interface {
	Probe(ctx context.Context, host string, count int, timeout time.Duration) probe.Statistics
}

// BloatTester runs the optional bufferbloat measurement.
type BloatTester interface {
	Test(ctx context.Context, duration time.Duration) (bufferbloat.Outcome, error)
}

// Options tune one diagnostic run.
type Options struct {
	PingCount           int
	PingTimeout         time.Duration
	Bufferbloat         bool
	BufferbloatDuration time.Duration
}

// Orchestrator builds and runs diagnostic snapshots. The constructor wires
// the real adapter enumeration, ICMP transport and load generator; tests
// swap the three factory fields for fakes.
type Orchestrator struct {
	Catalog []catalog.Server

	ListAdapters func() []adapter.Info
	NewProber    func(source string) Prober
	NewBloat     func(p Prober, source string) BloatTester
}

// New returns an orchestrator over the given catalog (nil means the
// compiled-in default) with production collaborators.
func New(servers []catalog.Server) *Orchestrator {
	if len(servers) == 0 {
		servers = catalog.Default()
	}
	o := &Orchestrator{
		Catalog:      servers,
		ListAdapters: adapter.List,
		NewProber: func(source string) Prober {
			return probe.New(probe.NewICMP(), source)
		},
	}
	o.NewBloat = func(p Prober, source string) BloatTester {
		return bufferbloat.NewTester(p, load.New(source), o.Catalog)
	}
	return o
}

// Run executes the suite. Adapters are re-enumerated fresh, every catalog
// server is probed sequentially (cancellation stops the walk early), and
// the resulting snapshot is complete and immutable on return. Failures of
// individual servers, of the adapter selection or of the bufferbloat test
// degrade the snapshot's data, never abort the run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) Snapshot {
	if opts.PingCount <= 0 {
		opts.PingCount = defaultPingCount
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}

	snap := Snapshot{
		StartedAt:   time.Now(),
		RegionAvgMs: map[string]float64{},
	}

	snap.Adapters = o.ListAdapters()
	snap.Primary = adapter.SelectPrimary(snap.Adapters)
	if !snap.Primary.Zero() {
		logrus.Info("[ ADAPTER ] primary: ", snap.Primary.Name, " (", snap.Primary.IPv4, ")")
	}

	prober := o.NewProber(snap.Primary.IPv4)

	regionSamples := map[string][]float64{}
	lossyServers := 0
	for _, srv := range o.Catalog {
		if ctx.Err() != nil {
			logrus.Warn("[ RUN_CANCELLED ] stopping after ", len(snap.Servers), " of ", len(o.Catalog), " servers")
			break
		}
		logrus.Info("[ PROBE ] ", srv.Host, " (", srv.Region, ")")

		stats := prober.Probe(ctx, srv.Host, opts.PingCount, opts.PingTimeout)
		stats.Region = srv.Region
		snap.Servers = append(snap.Servers, stats)

		if stats.PacketsRecv > 0 {
			regionSamples[srv.Region] = append(regionSamples[srv.Region], stats.AvgRtt)
			if stats.AvgRtt > highLatencyMs {
				snap.HasHighLatency = true
			}
			if stats.Jitter > highJitterMs {
				snap.HasHighJitter = true
			}
		}
		if stats.PacketLoss > lossThresholdPct {
			lossyServers++
		}
	}
	snap.HasPacketLoss = lossyServers >= minLossyServers

	for region, avgs := range regionSamples {
		var sum float64
		for _, v := range avgs {
			sum += v
		}
		snap.RegionAvgMs[region] = sum / float64(len(avgs))
	}

	if opts.Bufferbloat && ctx.Err() == nil && !snap.Primary.Zero() {
		tester := o.NewBloat(prober, snap.Primary.IPv4)
		outcome, err := tester.Test(ctx, opts.BufferbloatDuration)
		if err != nil {
			logrus.Warn("[ BLOAT_FAIL ] ", err)
		} else {
			snap.Bufferbloat = &outcome
			snap.PossibleBufferbloat = outcome.Significant
		}
	}

	snap.FinishedAt = time.Now()
	snap.Summary = buildSummary(snap)
	return snap
}
