package diag

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"netqual/adapter"
	"netqual/bufferbloat"
	"netqual/catalog"
	"netqual/probe"
)

type canned struct {
	avg    float64
	jitter float64
	loss   float64
}

// cannedProber serves per-host statistics and records probe order.
type cannedProber struct {
	byHost map[string]canned
	order  []string
}

func (p *cannedProber) Probe(ctx context.Context, host string, count int, timeout time.Duration) probe.Statistics {
	p.order = append(p.order, host)
	c := p.byHost[host]
	recv := count - int(math.Round(float64(count)*c.loss/100))
	s := probe.Statistics{Host: host, PacketsSent: count, PacketsRecv: recv, AvgRtt: c.avg, Jitter: c.jitter, PacketLoss: c.loss}
	for i := 0; i < recv; i++ {
		s.Rtts = append(s.Rtts, c.avg)
	}
	return s
}

type cannedBloat struct {
	outcome bufferbloat.Outcome
	err     error
	ran     bool
}

func (b *cannedBloat) Test(ctx context.Context, d time.Duration) (bufferbloat.Outcome, error) {
	b.ran = true
	return b.outcome, b.err
}

func testOrchestrator(p Prober, servers []catalog.Server, bloat BloatTester) *Orchestrator {
	return &Orchestrator{
		Catalog: servers,
		ListAdapters: func() []adapter.Info {
			return []adapter.Info{{Name: "eth0", Description: "Intel Ethernet", IPv4: "203.0.113.5"}}
		},
		NewProber: func(source string) Prober { return p },
		NewBloat:  func(Prober, string) BloatTester { return bloat },
	}
}

func servers() []catalog.Server {
	return []catalog.Server{
		{Host: "a.example", Region: "EU"},
		{Host: "b.example", Region: "EU"},
		{Host: "c.example", Region: "USA"},
	}
}

func TestRunPreservesCatalogOrder(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20}, "b.example": {avg: 30}, "c.example": {avg: 90},
	}}
	o := testOrchestrator(p, servers(), nil)

	snap := o.Run(context.Background(), Options{})

	if len(snap.Servers) != 3 {
		t.Fatalf("got %d server entries, want 3", len(snap.Servers))
	}
	for i, want := range []string{"a.example", "b.example", "c.example"} {
		if snap.Servers[i].Host != want {
			t.Errorf("server[%d] = %q, want %q", i, snap.Servers[i].Host, want)
		}
	}
	if snap.Servers[0].Region != "EU" || snap.Servers[2].Region != "USA" {
		t.Error("region tags not copied onto statistics")
	}
}

func TestRunRegionAverages(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20}, "b.example": {avg: 40}, "c.example": {avg: 90},
	}}
	o := testOrchestrator(p, servers(), nil)

	snap := o.Run(context.Background(), Options{})

	if got := snap.RegionAvgMs["EU"]; got != 30 {
		t.Errorf("EU average = %v, want 30", got)
	}
	if got := snap.RegionAvgMs["USA"]; got != 90 {
		t.Errorf("USA average = %v, want 90", got)
	}
}

func TestRunDeadServerExcludedFromRegionAverage(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20},
		"b.example": {loss: 100}, // no replies, must not drag EU to 10
		"c.example": {avg: 50},
	}}
	o := testOrchestrator(p, servers(), nil)

	snap := o.Run(context.Background(), Options{})
	if got := snap.RegionAvgMs["EU"]; got != 20 {
		t.Errorf("EU average = %v, want 20 (dead server excluded)", got)
	}
}

func TestRunHighLatencyAndJitterFlags(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 150}, "b.example": {avg: 20, jitter: 25}, "c.example": {avg: 30},
	}}
	o := testOrchestrator(p, servers(), nil)

	snap := o.Run(context.Background(), Options{})
	if !snap.HasHighLatency {
		t.Error("HasHighLatency = false with a 150ms server")
	}
	if !snap.HasHighJitter {
		t.Error("HasHighJitter = false with a 25ms-jitter server")
	}
	if !strings.Contains(snap.Summary, "latency") || !strings.Contains(snap.Summary, "jitter") {
		t.Errorf("summary missing clauses: %q", snap.Summary)
	}
}

func TestRunPacketLossNeedsTwoServers(t *testing.T) {
	one := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20, loss: 5}, "b.example": {avg: 20}, "c.example": {avg: 20},
	}}
	o := testOrchestrator(one, servers(), nil)
	if snap := o.Run(context.Background(), Options{}); snap.HasPacketLoss {
		t.Error("HasPacketLoss = true with a single lossy server; one server is noise")
	}

	two := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20, loss: 5}, "b.example": {avg: 20, loss: 2}, "c.example": {avg: 20},
	}}
	o = testOrchestrator(two, servers(), nil)
	if snap := o.Run(context.Background(), Options{}); !snap.HasPacketLoss {
		t.Error("HasPacketLoss = false with two lossy servers")
	}
}

func TestRunCleanSummary(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20}, "b.example": {avg: 25}, "c.example": {avg: 80},
	}}
	o := testOrchestrator(p, servers(), nil)

	snap := o.Run(context.Background(), Options{})
	if snap.Summary != "No significant network issues detected." {
		t.Errorf("summary = %q", snap.Summary)
	}
}

func TestRunBufferbloatFoldedIn(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20}, "b.example": {avg: 25}, "c.example": {avg: 80},
	}}
	bloat := &cannedBloat{outcome: bufferbloat.Outcome{
		Target: "a.example", BaselineMs: 10, DownloadMs: 80,
		WorstDirection: "download", WorstBloatPct: 700, WorstBloatMs: 70,
		Significant: true,
	}}
	o := testOrchestrator(p, servers(), bloat)

	snap := o.Run(context.Background(), Options{Bufferbloat: true})

	if !bloat.ran {
		t.Fatal("bufferbloat tester never invoked")
	}
	if snap.Bufferbloat == nil || !snap.PossibleBufferbloat {
		t.Error("significant outcome not folded into the snapshot")
	}
	if !strings.Contains(snap.Summary, "bufferbloat") {
		t.Errorf("summary missing bufferbloat clause: %q", snap.Summary)
	}
}

func TestRunBufferbloatFailureDegrades(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20}, "b.example": {avg: 25}, "c.example": {avg: 80},
	}}
	bloat := &cannedBloat{err: context.DeadlineExceeded}
	o := testOrchestrator(p, servers(), bloat)

	snap := o.Run(context.Background(), Options{Bufferbloat: true})
	if snap.Bufferbloat != nil || snap.PossibleBufferbloat {
		t.Error("failed bufferbloat test must leave the snapshot clean")
	}
	if snap.Summary != "No significant network issues detected." {
		t.Errorf("summary = %q", snap.Summary)
	}
}

func TestRunCancellationStopsEarly(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{
		"a.example": {avg: 20}, "b.example": {avg: 25}, "c.example": {avg: 80},
	}}
	o := testOrchestrator(p, servers(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := o.Run(ctx, Options{})

	if len(snap.Servers) != 0 {
		t.Errorf("probed %d servers after cancellation", len(snap.Servers))
	}
}

func TestRunNoAdapter(t *testing.T) {
	p := &cannedProber{byHost: map[string]canned{}}
	o := testOrchestrator(p, servers(), nil)
	o.ListAdapters = func() []adapter.Info { return nil }

	snap := o.Run(context.Background(), Options{Bufferbloat: true})
	if !snap.Primary.Zero() {
		t.Fatal("expected zero primary adapter")
	}
	if !strings.Contains(snap.Summary, "No usable network adapter") {
		t.Errorf("summary = %q", snap.Summary)
	}
}
