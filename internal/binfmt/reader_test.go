package binfmt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func newTestReader(p []byte) *Reader {
	return NewReader(bytes.NewReader(p), int64(len(p)))
}

func TestReader_Primitives(t *testing.T) {
	var p []byte
	p = binary.LittleEndian.AppendUint16(p, 0xBEEF)
	p = binary.LittleEndian.AppendUint32(p, 0xDEADBEEF)
	p = binary.LittleEndian.AppendUint32(p, uint32(0xFFFFFFFE)) // int32 -2
	p = binary.LittleEndian.AppendUint64(p, uint64(1234567890123))
	p = append(p, 1, 0)

	r := newTestReader(p)
	if v, err := r.ReadUint16(); err != nil || v != 0xBEEF {
		t.Fatalf("ReadUint16 = %#x, %v", v, err)
	}
	if v, err := r.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("ReadUint32 = %#x, %v", v, err)
	}
	if v, err := r.ReadInt32(); err != nil || v != -2 {
		t.Fatalf("ReadInt32 = %d, %v", v, err)
	}
	if v, err := r.ReadInt64(); err != nil || v != 1234567890123 {
		t.Fatalf("ReadInt64 = %d, %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || !v {
		t.Fatalf("ReadBool = %v, %v, want true", v, err)
	}
	if v, err := r.ReadBool(); err != nil || v {
		t.Fatalf("ReadBool = %v, %v, want false", v, err)
	}
	if r.Position() != int64(len(p)) {
		t.Fatalf("Position = %d, want %d", r.Position(), len(p))
	}
	if r.BytesRead() != int64(len(p)) {
		t.Fatalf("BytesRead = %d, want %d", r.BytesRead(), len(p))
	}
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		t.Fatalf("ReadByte at end = %v, want io.EOF", err)
	}
}

func TestReader_ReadString(t *testing.T) {
	long := strings.Repeat("x", 300) // needs a two-byte length prefix
	var p []byte
	for _, s := range []string{"", "hello", long, "héllo"} {
		p = binary.AppendUvarint(p, uint64(len(s)))
		p = append(p, s...)
	}

	r := newTestReader(p)
	for _, want := range []string{"", "hello", long, "héllo"} {
		got, err := r.ReadString()
		if err != nil {
			t.Fatalf("ReadString returned error: %v", err)
		}
		if got != want {
			t.Fatalf("ReadString = %q, want %q", got, want)
		}
	}
}

func TestReader_ReadStringRejectsOversizedLength(t *testing.T) {
	p := binary.AppendUvarint(nil, 1000)
	p = append(p, "short"...)

	_, err := newTestReader(p).ReadString()
	if !errors.Is(err, ErrBadStringLength) {
		t.Fatalf("ReadString error = %v, want ErrBadStringLength", err)
	}
}

func TestReader_ReadStringRejectsLongPrefix(t *testing.T) {
	p := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, err := newTestReader(p).ReadString()
	if !errors.Is(err, ErrBadLengthPrefix) {
		t.Fatalf("ReadString error = %v, want ErrBadLengthPrefix", err)
	}
}

func TestReader_TruncatedReads(t *testing.T) {
	r := newTestReader([]byte{1, 2})
	if _, err := r.ReadUint32(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadUint32 on 2 bytes = %v, want io.ErrUnexpectedEOF", err)
	}

	r = newTestReader([]byte{0x85})
	if _, err := r.ReadString(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("ReadString with cut prefix = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReader_Seek(t *testing.T) {
	p := make([]byte, 200*1024)
	for i := range p {
		p[i] = byte(i)
	}
	r := newTestReader(p)

	if _, err := r.ReadByte(); err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	// Forward within the buffered window.
	if err := r.Seek(10); err != nil {
		t.Fatalf("Seek(10): %v", err)
	}
	if b, _ := r.ReadByte(); b != 10 {
		t.Fatalf("byte at 10 = %d", b)
	}
	// Backwards.
	if err := r.Seek(3); err != nil {
		t.Fatalf("Seek(3): %v", err)
	}
	if b, _ := r.ReadByte(); b != 3 {
		t.Fatalf("byte at 3 = %d", b)
	}
	// Far forward, past the buffer.
	if err := r.Seek(150 * 1024); err != nil {
		t.Fatalf("Seek(150K): %v", err)
	}
	if b, _ := r.ReadByte(); b != byte(p[150*1024]) {
		t.Fatalf("byte at 150K = %d", b)
	}
	if r.Position() != 150*1024+1 {
		t.Fatalf("Position = %d", r.Position())
	}
	if r.BytesRead() != 4 {
		t.Fatalf("BytesRead = %d, want 4 (seeks do not count)", r.BytesRead())
	}
	if err := r.Seek(-1); err == nil {
		t.Fatalf("Seek(-1) returned nil error")
	}
}

func TestTicks_RoundTrip(t *testing.T) {
	want := time.Date(2024, 3, 9, 14, 30, 15, 123456700, time.UTC)
	got := TicksToTime(TimeToTicks(want))
	if !got.Equal(want) {
		t.Fatalf("TicksToTime(TimeToTicks(%v)) = %v", want, got)
	}
	if !TicksToTime(ticksAtUnixEpoch).Equal(time.Unix(0, 0)) {
		t.Fatalf("unix epoch ticks do not map to the unix epoch")
	}
	before := time.Date(1900, 1, 1, 0, 0, 0, 100, time.UTC)
	if got := TicksToTime(TimeToTicks(before)); !got.Equal(before) {
		t.Fatalf("pre-epoch round trip = %v, want %v", got, before)
	}
}

func TestDataFlags_ValidInCircular(t *testing.T) {
	tests := []struct {
		name  string
		flags DataFlags
		want  bool
	}{
		{"plain message", Time | ThreadID | Message, true},
		{"entry", MethodEntry | MethodName, true},
		{"exit", MethodExit | StackDepth, true},
		{"circular start again", CircularStart | Message, false},
		{"explicit number", LineNumber | Message, false},
		{"entry and exit", MethodEntry | MethodExit, false},
		{"undefined bit", 0x4000 | Message, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.flags.ValidInCircular(); got != tt.want {
				t.Errorf("ValidInCircular(%#04x) = %v, want %v", uint16(tt.flags), got, tt.want)
			}
		})
	}
}
