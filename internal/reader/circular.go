package reader

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/oicur0t/tracex/internal/binfmt"
)

const indexEntrySize = 6

// indexEntry is one slot of the index area written at the start of the
// circular part: a wrap counter and the offset of the record it points to.
type indexEntry struct {
	counter uint16
	offset  int64
}

// oldestIndexEntry scans entries in order and returns the offset paired with
// the last counter of the run that starts at the first entry and grows by
// one (mod 2^16). The first entry is trusted unconditionally. ok is false
// when entries is empty.
func oldestIndexEntry(entries []indexEntry) (offset int64, ok bool) {
	if len(entries) == 0 {
		return 0, false
	}
	last := entries[0]
	for _, e := range entries[1:] {
		if e.counter != last.counter+1 {
			break
		}
		last = e
	}
	return last.offset, true
}

// beginCircular reads the index area that follows a CircularStart flags word
// and positions the stream at the oldest record of the circular part.
func (s *Session) beginCircular() StopReason {
	r := s.rd.r

	areaSize, err := r.ReadUint32()
	if err != nil {
		return faultReason(err)
	}
	if _, err := r.ReadUint32(); err != nil {
		return faultReason(err)
	}
	start := r.Position()
	if int64(areaSize) > r.Size()-start {
		return StopTruncated
	}

	entries := make([]indexEntry, 0, areaSize/indexEntrySize)
	for i := uint32(0); i < areaSize/indexEntrySize; i++ {
		counter, err := r.ReadUint16()
		if err != nil {
			return faultReason(err)
		}
		off, err := r.ReadUint32()
		if err != nil {
			return faultReason(err)
		}
		entries = append(entries, indexEntry{counter: counter, offset: int64(off)})
	}

	s.circularStart = start + int64(areaSize)
	s.lastLinear = s.number
	s.stats.CircularStarted = true

	oldest, ok := oldestIndexEntry(entries)
	if !ok || oldest < s.circularStart || oldest >= r.Size() {
		s.logger.Warn("Circular index area inconsistent, reading from start of circular part",
			zap.Uint32("area_size", areaSize),
			zap.Int64("candidate", oldest),
			zap.Int64("circular_start", s.circularStart))
		s.stats.IndexFallback = true
		oldest = s.circularStart
	} else {
		s.logger.Debug("Located oldest circular record",
			zap.Int("entries", len(entries)),
			zap.Int64("offset", oldest))
	}

	if err := r.Seek(oldest); err != nil {
		return StopCorrupt
	}
	s.firstCircular = true
	return StopNone
}

// readFlags returns the flags word of the next record. In the circular part
// it also reads and checks the record number prefix.
func (s *Session) readFlags() (binfmt.DataFlags, StopReason) {
	r := s.rd.r

	if s.circularStart == 0 {
		v, err := r.ReadUint16()
		if err != nil {
			return 0, boundaryReason(err)
		}
		flags := binfmt.DataFlags(v)
		switch {
		case flags == 0:
			return 0, StopEndOfStream
		case flags.Has(binfmt.LastRecord):
			s.sessionEnd = r.Position()
			return 0, StopSessionEnd
		case !flags.Has(binfmt.CircularStart):
			return flags, StopNone
		}
		if stop := s.beginCircular(); stop != StopNone {
			return 0, stop
		}
	}

	num, err := r.ReadUint32()
	if err != nil {
		return 0, boundaryReason(err)
	}
	if s.firstCircular {
		s.firstCircular = false
	} else if num != s.number+1 {
		return 0, StopStaleData
	}
	v, err := r.ReadUint16()
	if err != nil {
		return 0, faultReason(err)
	}
	flags := binfmt.DataFlags(v)
	if flags == 0 {
		return 0, StopEndOfStream
	}
	if !flags.ValidInCircular() {
		return 0, StopStaleData
	}
	s.number = num
	if flags.Has(binfmt.LastRecord) {
		return 0, StopSessionEnd
	}
	return flags, StopNone
}

// wrap moves back to the first physical circular record once the stream
// reaches the size cap.
func (s *Session) wrap() StopReason {
	r := s.rd.r
	if s.circularStart == 0 || s.sizeCap <= 0 || r.Position() < s.sizeCap {
		return StopNone
	}
	if err := r.Seek(s.circularStart); err != nil {
		return StopCorrupt
	}
	return StopNone
}

// boundaryReason maps a read error at a record boundary.
func boundaryReason(err error) StopReason {
	if errors.Is(err, io.EOF) {
		return StopEndOfStream
	}
	return faultReason(err)
}

// faultReason maps a read error inside a record.
func faultReason(err error) StopReason {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return StopTruncated
	}
	return StopCorrupt
}

var errNoThread = errors.New("record before any thread id")
