// Package probe measures round-trip latency, jitter and packet loss with a
// bounded, retried sequence of ICMP echoes. Pings run strictly one after
// another; firing them in parallel would let the probes congest each other
// and skew their own readings.
package probe

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"netqual/adapter"
)

const (
	payloadSize = 32
	maxRetries  = 2

	// Delays keep us under target-side ICMP rate limits.
	retryDelay = 100 * time.Millisecond
	pingDelay  = 200 * time.Millisecond

	// A sub-0.5ms RTT to a public host is a driver or timer artifact, not a
	// real network event. 0ms exactly is normalized up instead of dropped.
	minPlausibleMs = 0.5
)

// attemptState drives the per-ping retry machine. Policy lives entirely in
// the state transitions so it can be tested without a real socket.
type attemptState int

const (
	stateSending attemptState = iota
	stateAwaitingReply
	stateRetrying
	stateAccepted
	stateExhausted
)

// Prober sends echo sequences from a fixed source address.
type Prober struct {
	Transport Transport

	// Source is the IPv4 address of the selected primary adapter. Empty
	// means no usable adapter; every probe then reports total loss.
	Source string

	token uuid.UUID
}

// New returns a Prober bound to the given source address. The tracking
// token makes this run's replies distinguishable from any other pinger on
// the machine and defeats response caching.
func New(t Transport, source string) *Prober {
	return &Prober{Transport: t, Source: source, token: uuid.New()}
}

// Probe sends count pings to host with the given per-attempt timeout and
// aggregates the accepted samples. Resolution failure, a missing source
// adapter and a silent target all yield a total-loss Statistics, never an
// error: bad connectivity is a result, not a fault.
func (p *Prober) Probe(ctx context.Context, host string, count int, timeout time.Duration) Statistics {
	ipaddr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		logrus.Debug("[ RESOLVE_FAIL ] ", host, ": ", err)
		return allLoss(host, "")
	}
	dst := ipaddr.IP.String()

	if p.Source == "" {
		logrus.Debug("[ PROBE_SKIP ] ", host, ": no source adapter")
		return allLoss(host, dst)
	}

	stats := Statistics{Host: host, IPAddr: dst}
	privateDst := adapter.IsPrivate(dst)

	for seq := 0; seq < count; seq++ {
		if ctx.Err() != nil {
			break
		}
		if seq > 0 && !sleepCtx(ctx, pingDelay) {
			break
		}

		stats.PacketsSent++
		if ms, ok := p.attempt(ctx, dst, seq, timeout, privateDst); ok {
			stats.PacketsRecv++
			stats.Rtts = append(stats.Rtts, ms)
		}
	}

	stats.finalize()
	return stats
}

// attempt runs one ping through the retry machine: up to maxRetries extra
// echoes on no-reply or on an implausible reading, with a fixed pause
// between attempts.
func (p *Prober) attempt(ctx context.Context, dst string, seq int, timeout time.Duration, privateDst bool) (float64, bool) {
	state := stateSending
	retries := 0
	var (
		rtt time.Duration
		err error
		ms  float64
	)

	for {
		switch state {
		case stateSending:
			rtt, err = p.Transport.Echo(ctx, p.Source, dst, seq, p.newPayload(seq), timeout)
			state = stateAwaitingReply

		case stateAwaitingReply:
			if err != nil {
				if err != ErrTimeout && ctx.Err() == nil {
					logrus.Debug("[ ECHO_FAIL ] ", dst, " seq ", seq, ": ", err)
				}
				state = stateRetrying
				continue
			}
			ms = float64(rtt) / float64(time.Millisecond)
			if ms == 0 {
				ms = minPlausibleMs
			}
			if ms < 0 || (ms < minPlausibleMs && !privateDst) {
				state = stateRetrying
				continue
			}
			state = stateAccepted

		case stateAccepted:
			return ms, true

		case stateRetrying:
			if retries >= maxRetries || ctx.Err() != nil {
				state = stateExhausted
				continue
			}
			retries++
			if !sleepCtx(ctx, retryDelay) {
				state = stateExhausted
				continue
			}
			state = stateSending

		case stateExhausted:
			return 0, false
		}
	}
}

// newPayload builds a fixed-size payload: timestamp slot, tracking token,
// sequence byte, then random filler so consecutive pings never look alike.
func (p *Prober) newPayload(seq int) []byte {
	b := make([]byte, payloadSize)
	copy(b[timeSliceLength:], p.token[:])
	b[timeSliceLength+trackerLength] = byte(seq)
	rand.Read(b[timeSliceLength+trackerLength+1:])
	return b
}

// sleepCtx waits for d, returning false early if ctx is cancelled.
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
