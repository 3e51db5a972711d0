package binfmt

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// MaxStringLen bounds a single string field. Anything longer is treated as
// a corrupt length prefix.
const MaxStringLen = 16 << 20

var (
	ErrBadStringLength = errors.New("binfmt: string length out of range")
	ErrBadLengthPrefix = errors.New("binfmt: malformed 7-bit length prefix")
)

// Reader reads the little-endian primitives of the trace format from a
// seekable stream and keeps track of its own position.
type Reader struct {
	src  io.ReadSeeker
	buf  *bufio.Reader
	pos  int64
	size int64

	// consumed only grows; it is read concurrently for progress reporting.
	consumed atomic.Int64

	scratch [8]byte
}

// NewReader wraps src, whose total length is size, positioned at offset 0.
func NewReader(src io.ReadSeeker, size int64) *Reader {
	return &Reader{
		src:  src,
		buf:  bufio.NewReaderSize(src, 64*1024),
		size: size,
	}
}

// Position returns the absolute offset of the next byte to be read.
func (r *Reader) Position() int64 { return r.pos }

// Size returns the stream length given at construction.
func (r *Reader) Size() int64 { return r.size }

// BytesRead returns the number of bytes consumed so far. Seeks do not count.
func (r *Reader) BytesRead() int64 { return r.consumed.Load() }

// Seek moves to an absolute offset.
func (r *Reader) Seek(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("binfmt: seek to negative offset %d", pos)
	}
	if pos == r.pos {
		return nil
	}
	if pos > r.pos && pos-r.pos <= int64(r.buf.Buffered()) {
		n, err := r.buf.Discard(int(pos - r.pos))
		r.pos += int64(n)
		return err
	}
	if _, err := r.src.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("binfmt: seek to %d: %w", pos, err)
	}
	r.buf.Reset(r.src)
	r.pos = pos
	return nil
}

func (r *Reader) fill(p []byte) error {
	n, err := io.ReadFull(r.buf, p)
	r.pos += int64(n)
	r.consumed.Add(int64(n))
	return err
}

// ReadByte reads one byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.buf.ReadByte()
	if err != nil {
		return 0, err
	}
	r.pos++
	r.consumed.Add(1)
	return b, nil
}

// ReadBool reads a one-byte boolean; any non-zero value is true.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.fill(r.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.scratch[:2]), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.fill(r.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.scratch[:4]), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadInt64() (int64, error) {
	if err := r.fill(r.scratch[:8]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(r.scratch[:8])), nil
}

// ReadTicks reads an int64 tick count as a UTC time.
func (r *Reader) ReadTicks() (time.Time, error) {
	ticks, err := r.ReadInt64()
	if err != nil {
		return time.Time{}, err
	}
	return TicksToTime(ticks), nil
}

// ReadString reads a string prefixed by its byte length in 7-bit groups.
func (r *Reader) ReadString() (string, error) {
	n, err := r.read7BitLength()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > MaxStringLen {
		return "", fmt.Errorf("%w: %d bytes at offset %d", ErrBadStringLength, n, r.pos)
	}
	// A string running past the end is what a partially flushed file looks like.
	if r.size > 0 && int64(n) > r.size-r.pos {
		return "", fmt.Errorf("%w: %d bytes at offset %d: %w", ErrBadStringLength, n, r.pos, io.ErrUnexpectedEOF)
	}
	p := make([]byte, n)
	if err := r.fill(p); err != nil {
		return "", err
	}
	return string(p), nil
}

func (r *Reader) read7BitLength() (uint32, error) {
	var n uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			if shift > 0 && errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		n |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return n, nil
		}
	}
	return 0, ErrBadLengthPrefix
}
