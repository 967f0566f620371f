// Package bufferbloat measures latency inflation under a saturating load.
// A stable low-latency target is picked first, its idle latency taken as a
// baseline, and then the link is loaded in each direction while the same
// target keeps being probed.
package bufferbloat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"netqual/catalog"
	"netqual/load"
	"netqual/probe"
)

const (
	maxDuration    = 30 * time.Second
	startWait      = 3 * time.Second
	stopWait       = 3 * time.Second
	saturationWait = time.Second

	quickCount    = 3
	baselineCount = 10
	loadedCount   = 15
	pingTimeout   = time.Second

	// Averages at or below this are implausible for a remote target and
	// disqualify it from selection.
	minPlausibleAvgMs = 5
)

// Outcome is the result of one bufferbloat run. Latencies in milliseconds.
type Outcome struct {
	Target     string  `json:"target"`
	BaselineMs float64 `json:"baseline_ms"`

	DownloadMs       float64 `json:"download_ms"`
	DownloadBloatPct float64 `json:"download_bloat_pct"`

	UploadTested   bool    `json:"upload_tested"`
	UploadMs       float64 `json:"upload_ms"`
	UploadBloatPct float64 `json:"upload_bloat_pct"`

	// Worst direction by bloat percentage or by absolute delta; either
	// alone is enough to take the title.
	WorstDirection string  `json:"worst_direction"`
	WorstBloatPct  float64 `json:"worst_bloat_pct"`
	WorstBloatMs   float64 `json:"worst_bloat_ms"`

	Significant bool `json:"significant"`
}

// Prober is the slice of the probe API the tester needs.
type Prober interface {
	Probe(ctx context.Context, host string, count int, timeout time.Duration) probe.Statistics
}

// Session is the load-generator handle the tester drives.
type Session interface {
	WaitStarted(timeout time.Duration) bool
	Began() bool
	Stop(wait time.Duration) bool
}

// Loader starts saturation sessions.
type Loader interface {
	Start(ctx context.Context, dir load.Direction) Session
}

// regionPriority orders target selection; nearer regions first would bias
// toward anycast, so the scan walks declared geography instead.
var regionPriority = []string{"EU", "USA", "Oceania"}

// fallbackTargets are tried when no catalog server qualifies.
var fallbackTargets = []string{"1.1.1.1", "8.8.8.8"}

// Tester orchestrates one bufferbloat measurement.
type Tester struct {
	Prober  Prober
	Loader  Loader
	Servers []catalog.Server
}

// NewTester wires the tester to a concrete load generator.
func NewTester(p Prober, g *load.Generator, servers []catalog.Server) *Tester {
	return &Tester{Prober: p, Loader: generatorLoader{g}, Servers: servers}
}

type generatorLoader struct{ g *load.Generator }

func (l generatorLoader) Start(ctx context.Context, dir load.Direction) Session {
	return l.g.Start(ctx, dir)
}

// Test runs the full measurement: target selection, baseline, loaded
// download phase, loaded upload phase, then significance judgement. The
// whole run is capped at min(duration, 30s). An error means no usable
// target or a download phase that never produced data; the caller logs it
// and moves on, it is not fatal to a wider diagnostic run.
func (t *Tester) Test(ctx context.Context, duration time.Duration) (Outcome, error) {
	if duration <= 0 || duration > maxDuration {
		duration = maxDuration
	}
	deadline := time.Now().Add(duration)

	target := t.selectTarget(ctx)
	if target == "" {
		return Outcome{}, errors.New("no responsive bufferbloat target")
	}
	logrus.Info("[ BLOAT_TARGET ] ", target)

	base := t.Prober.Probe(ctx, target, baselineCount, pingTimeout)
	if base.PacketsRecv == 0 {
		return Outcome{}, fmt.Errorf("baseline against %v got no replies", target)
	}
	out := Outcome{Target: target, BaselineMs: base.AvgRtt}

	downMs, err := t.loadedPhase(ctx, target, load.Download)
	if err != nil {
		return Outcome{}, fmt.Errorf("download phase: %w", err)
	}
	out.DownloadMs = downMs

	// The upload phase is optional: skipped when over budget, and its own
	// failures only cost us the upload numbers.
	if ctx.Err() != nil || !time.Now().Before(deadline) {
		logrus.Warn("[ BLOAT_UPLOAD_SKIP ] time budget exhausted")
	} else if upMs, err := t.loadedPhase(ctx, target, load.Upload); err != nil {
		logrus.Warn("[ BLOAT_UPLOAD_SKIP ] ", err)
	} else {
		out.UploadTested = true
		out.UploadMs = upMs
	}

	out.judge()
	return out, nil
}

// selectTarget scans the catalog one region at a time and keeps the best
// plausible server of the first region that yields any. Falls back to
// public resolvers, then gives up with "".
func (t *Tester) selectTarget(ctx context.Context) string {
	for _, region := range regionPriority {
		best := math.Inf(1)
		candidate := ""
		for _, srv := range t.Servers {
			if srv.Region != region || ctx.Err() != nil {
				continue
			}
			quick := t.Prober.Probe(ctx, srv.Host, quickCount, pingTimeout)
			if quick.PacketsRecv == 0 {
				continue
			}
			if quick.AvgRtt > minPlausibleAvgMs && quick.AvgRtt < best {
				best = quick.AvgRtt
				candidate = srv.Host
			}
		}
		if candidate != "" {
			return candidate
		}
	}

	for _, host := range fallbackTargets {
		if ctx.Err() != nil {
			break
		}
		if quick := t.Prober.Probe(ctx, host, quickCount, pingTimeout); quick.PacketsRecv > 0 {
			return host
		}
	}
	return ""
}

// loadedPhase saturates one direction and measures latency through the
// congestion. A generator that never begins transferring fails the phase.
func (t *Tester) loadedPhase(ctx context.Context, target string, dir load.Direction) (float64, error) {
	session := t.Loader.Start(ctx, dir)
	if !session.WaitStarted(startWait) {
		session.Stop(stopWait)
		return 0, fmt.Errorf("%v generator never started", dir)
	}

	sleepCtx(ctx, saturationWait)
	stats := t.Prober.Probe(ctx, target, loadedCount, pingTimeout)

	if !session.Stop(stopWait) {
		logrus.Warn("[ BLOAT_LOAD ] ", dir, " generator still draining after ", stopWait)
	}

	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("no replies under %v load", dir)
	}
	return stats.AvgRtt, nil
}

// judge fills the derived fields. Significance needs both a doubling of
// latency and a perceptible absolute increase; a big percentage on an
// already tiny baseline isn't something a user can feel.
func (o *Outcome) judge() {
	o.DownloadBloatPct = bloatPct(o.BaselineMs, o.DownloadMs)
	o.WorstDirection = string(load.Download)
	o.WorstBloatPct = o.DownloadBloatPct
	o.WorstBloatMs = o.DownloadMs - o.BaselineMs

	if o.UploadTested {
		o.UploadBloatPct = bloatPct(o.BaselineMs, o.UploadMs)
		upDelta := o.UploadMs - o.BaselineMs
		if o.UploadBloatPct > o.WorstBloatPct || upDelta > o.WorstBloatMs {
			o.WorstDirection = string(load.Upload)
			o.WorstBloatPct = o.UploadBloatPct
			o.WorstBloatMs = upDelta
		}
	}

	o.Significant = o.WorstBloatPct > 100 && o.WorstBloatMs > 50
}

func bloatPct(baseline, loaded float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return 100 * (loaded - baseline) / baseline
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
