package sensor

import "time"

const (
	// TimestampWrap is the period of the 16-bit wire millisecond counter.
	TimestampWrap = 1 << 16
	// TimestampWindow bounds how far a reconstructed timestamp may sit from
	// the local clock before it is moved by one wrap.
	TimestampWindow = 60_000
)

// ReconstructTimestamp rebuilds an absolute millisecond timestamp from a
// 16-bit wire counter using the local clock.
func ReconstructTimestamp(now time.Time, wire uint16) int64 {
	nowMs := now.UnixMilli()
	ts := nowMs - nowMs%TimestampWrap + int64(wire)
	switch diff := ts - nowMs; {
	case diff > TimestampWindow:
		ts -= TimestampWrap
	case diff < -TimestampWindow:
		ts += TimestampWrap
	}
	return ts
}

// Clock supplies wall-clock time to decoders.
type Clock func() time.Time
