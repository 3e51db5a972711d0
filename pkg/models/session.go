package models

import "time"

// SessionInfo is the preamble metadata of one logical session within a file.
type SessionInfo struct {
	// Index is the zero-based position of the session in its file.
	Index           int
	FormatVersion   int32
	ProducerVersion string
	MaxMb           int32
	OpenTimeUTC     time.Time
	// OpenTimeLocal is the producer's wall clock at open, expressed in UTC.
	OpenTimeLocal time.Time
	IsDST         bool
	TzStandard    string
	TzDaylight    string
	// ThreadIDOffset is added to every thread ID decoded in this session.
	ThreadIDOffset int32
}

// TimeZone returns the producer's time zone label at open time.
func (s SessionInfo) TimeZone() string {
	if s.IsDST {
		return s.TzDaylight
	}
	return s.TzStandard
}

// SizeCap returns the file size in bytes at which circular logging wraps.
func (s SessionInfo) SizeCap() int64 {
	if s.MaxMb <= 0 {
		return 0
	}
	return int64(s.MaxMb) << 20
}
