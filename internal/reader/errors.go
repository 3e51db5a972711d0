package reader

import "errors"

var (
	// ErrUnsupportedVersion means the file header carries a format version
	// outside MinFormatVersion..MaxFormatVersion. Nothing else is read.
	ErrUnsupportedVersion = errors.New("unsupported format version")
	// ErrAccessDenied means the file is password protected and the password
	// was not confirmed.
	ErrAccessDenied = errors.New("access denied")
	// ErrCorruptPreamble means a session header could not be read. Sessions
	// already returned stay usable; no further sessions are read.
	ErrCorruptPreamble = errors.New("corrupt session preamble")
)

// StopReason tells why a session stopped producing records. None of the
// reasons is an error: a live or partially flushed file ends this way.
type StopReason int

const (
	StopNone StopReason = iota
	// StopEndOfStream is a clean end at a record boundary, including a
	// zero flags word in the linear part.
	StopEndOfStream
	// StopTruncated is an end in the middle of a record.
	StopTruncated
	// StopStaleData means the circular part ran into bytes left over from
	// before the last wrap.
	StopStaleData
	// StopSessionEnd is the explicit end-of-session marker.
	StopSessionEnd
	// StopCorrupt is any other malformed content.
	StopCorrupt
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopEndOfStream:
		return "end_of_stream"
	case StopTruncated:
		return "truncated"
	case StopStaleData:
		return "stale_data"
	case StopSessionEnd:
		return "session_end"
	case StopCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}
