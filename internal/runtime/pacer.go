package runtime

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer throttles a file-replay source to the stream's own bitrate
// (derived from PCR deltas) instead of reading as fast as the disk
// allows, using a token bucket sized to one TS packet so bursts stay
// bounded to a handful of packets rather than the whole read buffer.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer admitting bitsPerSecond/8 bytes per second,
// with a burst of one packet (packetSize bytes).
func NewPacer(bitsPerSecond int, packetSize int) *Pacer {
	bytesPerSecond := bitsPerSecond / 8
	if bytesPerSecond <= 0 {
		bytesPerSecond = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), packetSize)}
}

// SetRate re-targets the pacer, used when a PCR discontinuity or
// re-tune changes the measured bitrate.
func (p *Pacer) SetRate(bitsPerSecond int) {
	bytesPerSecond := bitsPerSecond / 8
	if bytesPerSecond <= 0 {
		bytesPerSecond = 1
	}
	p.limiter.SetLimit(rate.Limit(bytesPerSecond))
}

// WaitPacket blocks until one packetSize-bytes send is admitted.
func (p *Pacer) WaitPacket(ctx context.Context, packetSize int) error {
	return p.limiter.WaitN(ctx, packetSize)
}

// Backoff is a reconnect backoff limiter for recoverable component
// failures (newcamd disconnects, DVR reopen, CAM resets): rather than
// a hand-rolled exponential-backoff ticker, it uses rate.Sometimes to
// collapse a burst of near-simultaneous failures into a single
// reconnect attempt per interval.
type Backoff struct {
	sometimes *rate.Sometimes
}

// NewBackoff creates a backoff gate allowing at most one action per
// interval, regardless of how many times Try is called within it.
func NewBackoff(interval time.Duration) *Backoff {
	return &Backoff{sometimes: &rate.Sometimes{Interval: interval}}
}

// Try runs fn if the interval has elapsed since the last run,
// otherwise it's a no-op — callers call Try on every failed attempt
// and let the gate decide whether this one actually fires.
func (b *Backoff) Try(fn func()) {
	b.sometimes.Do(fn)
}
