package binfmt

import "time"

// Timestamps are stored as the number of 100ns ticks since 0001-01-01.
const (
	ticksPerSecond   = 10_000_000
	ticksAtUnixEpoch = 621_355_968_000_000_000
)

// TicksToTime converts a tick count to a UTC time.
func TicksToTime(ticks int64) time.Time {
	unix := ticks - ticksAtUnixEpoch
	sec := unix / ticksPerSecond
	rem := unix % ticksPerSecond
	if rem < 0 {
		sec--
		rem += ticksPerSecond
	}
	return time.Unix(sec, rem*100).UTC()
}

// TimeToTicks converts a time to a tick count, truncating to 100ns.
func TimeToTicks(t time.Time) int64 {
	return t.Unix()*ticksPerSecond + int64(t.Nanosecond()/100) + ticksAtUnixEpoch
}
