// Package testutil builds trace files byte for byte for tests.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oicur0t/tracex/internal/binfmt"
)

// Preamble holds the session header fields.
type Preamble struct {
	ProducerVersion string
	MaxMb           int32
	OpenUTC         time.Time
	OpenLocal       time.Time
	IsDST           bool
	TzStandard      string
	TzDaylight      string
}

// DefaultPreamble returns a preamble with fixed, recognisable values.
func DefaultPreamble() Preamble {
	open := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Preamble{
		ProducerVersion: "5.1.0.0",
		MaxMb:           1,
		OpenUTC:         open,
		OpenLocal:       open.Add(2 * time.Hour),
		IsDST:           true,
		TzStandard:      "W. Europe Standard Time",
		TzDaylight:      "W. Europe Daylight Time",
	}
}

// Frame is one entry of a call-stack snapshot.
type Frame struct {
	Number uint32
	Level  uint8
	Logger string
	Method string
}

// Rec describes one record. Only the fields whose bit is set in Flags are
// written. Stack, given outermost first, is written after the depth byte of
// a circular record.
type Rec struct {
	Flags      binfmt.DataFlags
	Number     uint32
	Time       time.Time
	ThreadID   int32
	ThreadName string
	Level      uint8
	Depth      uint8
	Stack      []Frame
	Logger     string
	Method     string
	Message    string
}

// Builder appends the parts of a trace file in order.
type Builder struct {
	buf     []byte
	version int32
}

// NewFile starts a file with the given format version.
func NewFile(version int32) *Builder {
	b := &Builder{version: version}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(version))
	return b
}

// NoPassword writes the "not protected" flag for formats that have one.
func (b *Builder) NoPassword() *Builder {
	if b.version >= 5 {
		b.buf = append(b.buf, 0)
	}
	return b
}

// Password writes the protection flag (when the format has one) and the hash.
func (b *Builder) Password(hash int32) *Builder {
	if b.version >= 5 {
		b.buf = append(b.buf, 1)
	}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(hash))
	return b
}

// Preamble writes a session header.
func (b *Builder) Preamble(p Preamble) *Builder {
	if b.version >= 3 {
		b.buf = appendString(b.buf, p.ProducerVersion)
	}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(p.MaxMb))
	b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(binfmt.TimeToTicks(p.OpenUTC)))
	b.buf = binary.LittleEndian.AppendUint64(b.buf, uint64(binfmt.TimeToTicks(p.OpenLocal)))
	if p.IsDST {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
	b.buf = appendString(b.buf, p.TzStandard)
	b.buf = appendString(b.buf, p.TzDaylight)
	return b
}

// Record writes a record of the linear part.
func (b *Builder) Record(r Rec) *Builder {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(r.Flags))
	b.buf = appendFields(b.buf, r, false)
	return b
}

// EncodeCircular returns the bytes of a circular record without appending them.
func (b *Builder) EncodeCircular(r Rec) []byte {
	p := binary.LittleEndian.AppendUint32(nil, r.Number)
	p = binary.LittleEndian.AppendUint16(p, uint16(r.Flags))
	return appendFields(p, r, true)
}

// CircularRecord appends a record of the circular part.
func (b *Builder) CircularRecord(r Rec) *Builder {
	b.buf = append(b.buf, b.EncodeCircular(r)...)
	return b
}

// CircularStart writes the circular start marker followed by an index area
// with room for n entries, all zero. It returns the offset of the area.
func (b *Builder) CircularStart(n int) int64 {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(binfmt.CircularStart))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(n*6))
	b.buf = binary.LittleEndian.AppendUint32(b.buf, 0)
	pos := b.Offset()
	b.buf = append(b.buf, make([]byte, n*6)...)
	return pos
}

// SetIndexEntry fills entry i of the index area at areaPos.
func (b *Builder) SetIndexEntry(areaPos int64, i int, counter uint16, offset int64) {
	at := areaPos + int64(i*6)
	binary.LittleEndian.PutUint16(b.buf[at:], counter)
	binary.LittleEndian.PutUint32(b.buf[at+2:], uint32(offset))
}

// LastRecord writes the end-of-session marker.
func (b *Builder) LastRecord() *Builder {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, uint16(binfmt.LastRecord))
	return b
}

// Raw appends arbitrary bytes.
func (b *Builder) Raw(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// PadTo appends zero bytes up to offset off.
func (b *Builder) PadTo(off int64) *Builder {
	if n := off - b.Offset(); n > 0 {
		b.buf = append(b.buf, make([]byte, n)...)
	}
	return b
}

// Offset returns the current length of the file.
func (b *Builder) Offset() int64 { return int64(len(b.buf)) }

// Bytes returns the file contents.
func (b *Builder) Bytes() []byte { return b.buf }

// WriteFile writes the file into a fresh temp dir and returns its path.
func (b *Builder) WriteFile(t testing.TB, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b.buf, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func appendFields(p []byte, r Rec, circular bool) []byte {
	f := r.Flags
	if f.Has(binfmt.LineNumber) {
		p = binary.LittleEndian.AppendUint32(p, r.Number)
	}
	if f.Has(binfmt.Time) {
		p = binary.LittleEndian.AppendUint64(p, uint64(binfmt.TimeToTicks(r.Time)))
	}
	if f.Has(binfmt.ThreadID) {
		p = binary.LittleEndian.AppendUint32(p, uint32(r.ThreadID))
	}
	if f.Has(binfmt.ThreadName) {
		p = appendString(p, r.ThreadName)
	}
	if f.Has(binfmt.TraceLevel) {
		p = append(p, r.Level)
	}
	if f.Has(binfmt.StackDepth) {
		p = append(p, r.Depth)
		if circular {
			for i := len(r.Stack) - 1; i >= 0; i-- {
				fr := r.Stack[i]
				p = binary.LittleEndian.AppendUint32(p, fr.Number)
				p = append(p, fr.Level)
				p = appendString(p, fr.Logger)
				p = appendString(p, fr.Method)
			}
		}
	}
	if f.Has(binfmt.LoggerName) {
		p = appendString(p, r.Logger)
	}
	if f.Has(binfmt.MethodName) {
		p = appendString(p, r.Method)
	}
	if f.Has(binfmt.Message) {
		p = appendString(p, r.Message)
	}
	return p
}

func appendString(p []byte, s string) []byte {
	p = binary.AppendUvarint(p, uint64(len(s)))
	return append(p, s...)
}
