package reader

import (
	"fmt"

	"github.com/oicur0t/tracex/internal/binfmt"
	"github.com/oicur0t/tracex/pkg/models"
)

// Supported range of the file format version found in the file header.
const (
	MinFormatVersion int32 = 2
	MaxFormatVersion int32 = 6
)

// fileHeader is the file-level part that precedes the first session.
type fileHeader struct {
	version   int32
	protected bool
	hash      int32
}

func readFileHeader(r *binfmt.Reader) (fileHeader, error) {
	var h fileHeader
	var err error

	if h.version, err = r.ReadInt32(); err != nil {
		return h, fmt.Errorf("failed to read format version: %w", err)
	}
	if h.version < MinFormatVersion || h.version > MaxFormatVersion {
		return h, fmt.Errorf("%w: %d (want %d..%d)", ErrUnsupportedVersion, h.version, MinFormatVersion, MaxFormatVersion)
	}

	// Version 4 is always protected; later versions say so explicitly.
	switch {
	case h.version == 4:
		h.protected = true
	case h.version >= 5:
		if h.protected, err = r.ReadBool(); err != nil {
			return h, fmt.Errorf("failed to read password flag: %w", err)
		}
	}
	if h.protected {
		if h.hash, err = r.ReadInt32(); err != nil {
			return h, fmt.Errorf("failed to read password hash: %w", err)
		}
	}
	return h, nil
}

// readPreamble reads a session header. The caller fills in Index and
// ThreadIDOffset.
func readPreamble(r *binfmt.Reader, version int32) (models.SessionInfo, error) {
	info := models.SessionInfo{FormatVersion: version}
	var err error

	if version >= 3 {
		if info.ProducerVersion, err = r.ReadString(); err != nil {
			return info, fmt.Errorf("producer version: %w", err)
		}
	}
	if info.MaxMb, err = r.ReadInt32(); err != nil {
		return info, fmt.Errorf("max size: %w", err)
	}
	if info.OpenTimeUTC, err = r.ReadTicks(); err != nil {
		return info, fmt.Errorf("open time (utc): %w", err)
	}
	if info.OpenTimeLocal, err = r.ReadTicks(); err != nil {
		return info, fmt.Errorf("open time (local): %w", err)
	}
	if info.IsDST, err = r.ReadBool(); err != nil {
		return info, fmt.Errorf("dst flag: %w", err)
	}
	if info.TzStandard, err = r.ReadString(); err != nil {
		return info, fmt.Errorf("standard time zone: %w", err)
	}
	if info.TzDaylight, err = r.ReadString(); err != nil {
		return info, fmt.Errorf("daylight time zone: %w", err)
	}
	return info, nil
}
