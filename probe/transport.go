package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	timeSliceLength = 8
	trackerLength   = 16
	protocolICMP    = 1
)

// ErrTimeout is returned by Echo when no matching reply arrived in time.
var ErrTimeout = errors.New("echo timed out")

// Transport sends a single ICMP echo request and reports the round-trip
// time of the matching reply. Implementations must bind to src so traffic
// is forced onto the selected interface. The payload's first 8 bytes are
// reserved for the send timestamp; the 16 bytes after that carry the
// caller's tracking token and are matched against the reply.
type Transport interface {
	Echo(ctx context.Context, src, dst string, seq int, payload []byte, timeout time.Duration) (time.Duration, error)
}

// ICMP is the raw-socket Transport. One socket is opened per echo, bound
// to the source address, and closed before returning, so a failed run
// never leaks a handle.
type ICMP struct {
	// TTL set on outgoing packets.
	TTL int

	id int
}

// NewICMP returns a transport with a random echo identifier.
func NewICMP() *ICMP {
	return &ICMP{TTL: 128, id: rand.Intn(math.MaxUint16)}
}

func (t *ICMP) Echo(ctx context.Context, src, dst string, seq int, payload []byte, timeout time.Duration) (time.Duration, error) {
	if len(payload) < timeSliceLength+trackerLength {
		return 0, fmt.Errorf("payload %d below minimum %d", len(payload), timeSliceLength+trackerLength)
	}

	conn, err := icmp.ListenPacket("ip4:icmp", src)
	if err != nil {
		return 0, fmt.Errorf("open icmp socket: %w", err)
	}
	defer conn.Close()
	if pc := conn.IPv4PacketConn(); pc != nil {
		pc.SetTTL(t.TTL)
	}

	ip := net.ParseIP(dst)
	if ip == nil {
		return 0, fmt.Errorf("invalid destination %q", dst)
	}

	copy(payload[:timeSliceLength], timeToBytes(time.Now()))
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: t.id, Seq: seq, Data: payload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return 0, err
	}
	if _, err := conn.WriteTo(wb, &net.IPAddr{IP: ip}); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	rb := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		if err := conn.SetReadDeadline(deadline); err != nil {
			return 0, err
		}
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			if neterr, ok := err.(*net.OpError); ok && neterr.Timeout() {
				return 0, ErrTimeout
			}
			return 0, err
		}

		m, err := icmp.ParseMessage(protocolICMP, rb[:n])
		if err != nil || m.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := m.Body.(*icmp.Echo)
		if !ok || echo.ID != t.id || echo.Seq != seq {
			continue
		}
		if len(echo.Data) < timeSliceLength+trackerLength {
			continue
		}
		if !bytes.Equal(echo.Data[timeSliceLength:timeSliceLength+trackerLength],
			payload[timeSliceLength:timeSliceLength+trackerLength]) {
			continue
		}

		// RTT from the timestamp the target echoed back.
		return time.Since(bytesToTime(echo.Data[:timeSliceLength])), nil
	}
}

func timeToBytes(t time.Time) []byte {
	nsec := t.UnixNano()
	b := make([]byte, timeSliceLength)
	for i := uint8(0); i < timeSliceLength; i++ {
		b[i] = byte((nsec >> ((7 - i) * 8)) & 0xff)
	}
	return b
}

func bytesToTime(b []byte) time.Time {
	var nsec int64
	for i := uint8(0); i < timeSliceLength; i++ {
		nsec += int64(b[i]) << ((7 - i) * 8)
	}
	return time.Unix(nsec/1000000000, nsec%1000000000)
}
