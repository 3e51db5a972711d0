// Package reader decodes binary trace log files into records.
package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/oicur0t/tracex/internal/binfmt"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Options configures how a file is opened.
type Options struct {
	Logger *zap.Logger
	// Password is asked to confirm a protected file. A nil prompter
	// denies access unless Passwords already holds the file's hash.
	Password PasswordPrompter
	// Passwords remembers accepted hashes across opens.
	Passwords *PasswordCache
	// Registry collects interned entities. Pass a registry that Reuse'd
	// the previous one to keep entity state across a refresh.
	Registry *Registry
}

// Reader walks the sessions of one trace file.
type Reader struct {
	logger   *zap.Logger
	r        *binfmt.Reader
	closer   io.Closer
	registry *Registry
	version  int32

	// next is the offset of the next session preamble, or -1.
	next     int64
	offset   int32
	sessions int
	cur      *Session
	closed   bool
}

// Open opens the trace file at path. Files ending in .zst or starting with
// the zstd magic number are decompressed into memory first.
func Open(ctx context.Context, path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	src, size, err := openSource(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, ok := src.(*os.File); !ok {
		f.Close()
	}

	rd, err := NewReader(ctx, src, size, opts)
	if err != nil {
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		rd.closer = c
	}

	rd.logger.Info("Opened trace file",
		zap.String("path", path),
		zap.Int64("size", size),
		zap.Int32("format_version", rd.version))
	return rd, nil
}

func openSource(f *os.File, path string) (io.ReadSeeker, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat trace file: %w", err)
	}

	compressed := strings.HasSuffix(path, ".zst")
	if !compressed {
		magic := make([]byte, len(zstdMagic))
		if n, _ := f.ReadAt(magic, 0); n == len(magic) {
			compressed = bytes.Equal(magic, zstdMagic)
		}
	}
	if !compressed {
		return f, info.Size(), nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decompress trace file: %w", err)
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// NewReader reads the file header from src, whose length is size, and
// checks the password when the file is protected. It fails with
// ErrUnsupportedVersion or ErrAccessDenied without reading any record.
func NewReader(ctx context.Context, src io.ReadSeeker, size int64, opts Options) (*Reader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	passwords := opts.Passwords
	if passwords == nil {
		passwords = &PasswordCache{}
	}

	br := binfmt.NewReader(src, size)
	h, err := readFileHeader(br)
	if err != nil {
		return nil, err
	}

	if h.protected {
		ok, err := passwords.Confirm(ctx, h.hash, opts.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
		if !ok {
			return nil, ErrAccessDenied
		}
	}

	return &Reader{
		logger:   logger,
		r:        br,
		registry: registry,
		version:  h.version,
		next:     br.Position(),
	}, nil
}

// Version returns the file format version.
func (rd *Reader) Version() int32 { return rd.version }

// Registry returns the registry the file's entities are interned in.
func (rd *Reader) Registry() *Registry { return rd.registry }

// Sessions returns the number of sessions opened so far.
func (rd *Reader) Sessions() int { return rd.sessions }

// Size returns the length of the decoded stream.
func (rd *Reader) Size() int64 { return rd.r.Size() }

// BytesRead returns the bytes consumed so far. Safe to call from any
// goroutine.
func (rd *Reader) BytesRead() int64 { return rd.r.BytesRead() }

// NextSession reads the next session preamble. Any unread records of the
// current session are skipped first. It returns io.EOF when the file holds
// no further session, and an error wrapping ErrCorruptPreamble when the
// preamble cannot be read; sessions returned earlier stay valid.
func (rd *Reader) NextSession(ctx context.Context) (*Session, error) {
	if rd.closed {
		return nil, errors.New("reader is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rd.cur != nil && !rd.cur.done {
		rd.cur.drain()
	}
	if rd.next < 0 || rd.next >= rd.r.Size() {
		return nil, io.EOF
	}

	if err := rd.r.Seek(rd.next); err != nil {
		rd.next = -1
		return nil, fmt.Errorf("%w: %w", ErrCorruptPreamble, err)
	}
	info, err := readPreamble(rd.r, rd.version)
	if err != nil {
		rd.logger.Warn("Failed to read session preamble",
			zap.Int("session", rd.sessions),
			zap.Int64("offset", rd.next),
			zap.Error(err))
		rd.next = -1
		return nil, fmt.Errorf("%w: session %d: %w", ErrCorruptPreamble, rd.sessions, err)
	}
	info.Index = rd.sessions
	info.ThreadIDOffset = rd.offset

	rd.sessions++
	rd.next = -1
	rd.cur = newSession(rd, info)

	rd.logger.Debug("Session opened",
		zap.Int("session", info.Index),
		zap.String("producer_version", info.ProducerVersion),
		zap.Int32("max_mb", info.MaxMb),
		zap.Time("open_utc", info.OpenTimeUTC),
		zap.Int32("thread_id_offset", info.ThreadIDOffset))
	return rd.cur, nil
}

func (rd *Reader) sessionDone(s *Session, next int64) {
	if s.maxThreadID > 0 {
		rd.offset = s.maxThreadID
	}
	rd.next = next
}

// Close releases the underlying file. Sessions stop returning records.
func (rd *Reader) Close() error {
	if rd.closed {
		return nil
	}
	rd.closed = true
	if rd.closer != nil {
		return rd.closer.Close()
	}
	return nil
}
