// Package loader runs the decoder on a worker goroutine and hands records
// to the caller.
package loader

import (
	"cmp"
	"context"
	"errors"
	"io"
	"slices"

	"go.uber.org/zap"

	"github.com/oicur0t/tracex/internal/reader"
	"github.com/oicur0t/tracex/pkg/models"
)

// Loader decodes every session of a file.
type Loader struct {
	logger *zap.Logger
}

// New creates a new Loader
func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// SessionRecords is one decoded session with its synthesized records merged in.
type SessionRecords struct {
	Info    models.SessionInfo
	Stats   reader.Stats
	Stop    reader.StopReason
	Records []*models.Record
}

// Run decodes all sessions of rd and sends their records on out, which it
// closes when done. After each session it sends the synthesized entry
// records, then the synthesized exit records. ctx is checked between
// records; on cancellation rd is closed and ctx.Err() returned.
//
// A session whose preamble is corrupt ends the run with an error wrapping
// reader.ErrCorruptPreamble; everything before it was already sent.
func (l *Loader) Run(ctx context.Context, rd *reader.Reader, out chan<- *models.Record) error {
	defer close(out)

	send := func(rec *models.Record) error {
		select {
		case out <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return l.each(ctx, rd, func(s *reader.Session) error {
		for _, rec := range s.MissingEntryRecords() {
			if err := send(rec); err != nil {
				return err
			}
		}
		for _, rec := range s.MissingExitRecords() {
			if err := send(rec); err != nil {
				return err
			}
		}
		return nil
	}, send)
}

// Collect decodes all sessions of rd and returns each with its records in
// display order.
func (l *Loader) Collect(ctx context.Context, rd *reader.Reader) ([]SessionRecords, error) {
	var (
		sessions []SessionRecords
		records  []*models.Record
	)
	err := l.each(ctx, rd, func(s *reader.Session) error {
		sessions = append(sessions, SessionRecords{
			Info:    s.Info(),
			Stats:   s.Stats(),
			Stop:    s.Stop(),
			Records: Merge(records, s.MissingEntryRecords(), s.MissingExitRecords()),
		})
		records = nil
		return nil
	}, func(rec *models.Record) error {
		records = append(records, rec)
		return nil
	})
	return sessions, err
}

// each walks the sessions of rd, calling emit for every record and done
// after every session.
func (l *Loader) each(ctx context.Context, rd *reader.Reader, done func(*reader.Session) error, emit func(*models.Record) error) error {
	abort := func(err error) error {
		if cerr := rd.Close(); cerr != nil {
			l.logger.Warn("Failed to close trace file", zap.Error(cerr))
		}
		return err
	}

	last := rd.BytesRead()
	for {
		s, err := rd.NextSession(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return abort(err)
		}
		if err != nil {
			return err
		}

		for {
			if err := ctx.Err(); err != nil {
				return abort(err)
			}
			if !s.Next() {
				break
			}
			recordsDecoded.WithLabelValues(kindRead).Inc()
			if err := emit(s.Record()); err != nil {
				return abort(err)
			}
		}

		st := s.Stats()
		sessionsDecoded.WithLabelValues(s.Stop().String()).Inc()
		sessionDecodeDuration.Observe(st.Elapsed.Seconds())
		recordsDecoded.WithLabelValues(kindSynthEntry).Add(float64(len(s.MissingEntryRecords())))
		recordsDecoded.WithLabelValues(kindSynthExit).Add(float64(len(s.MissingExitRecords())))
		now := rd.BytesRead()
		bytesDecoded.Add(float64(now - last))
		last = now

		l.logger.Info("Session decoded",
			zap.Int("session", s.Info().Index),
			zap.Int64("records", st.RecordsRead),
			zap.Int64("lost_via_wrapping", st.LostViaWrapping()),
			zap.Stringer("stop", s.Stop()),
			zap.Duration("elapsed", st.Elapsed))

		if err := done(s); err != nil {
			return abort(err)
		}
	}
}

// Progress returns how much of rd has been consumed, in percent. It may be
// called from any goroutine while Run is in progress.
func Progress(rd *reader.Reader) float64 {
	size := rd.Size()
	if size <= 0 {
		return 100
	}
	p := float64(rd.BytesRead()) * 100 / float64(size)
	return min(p, 100)
}

// Merge orders decoded and synthesized records by record number. A
// synthesized exit sorts after the record that shares its number.
func Merge(records, entries, exits []*models.Record) []*models.Record {
	out := make([]*models.Record, 0, len(records)+len(entries)+len(exits))
	out = append(out, records...)
	out = append(out, entries...)
	out = append(out, exits...)

	rank := func(r *models.Record) int {
		if r.Synthesized && r.Exit {
			return 1
		}
		return 0
	}
	slices.SortStableFunc(out, func(a, b *models.Record) int {
		if c := cmp.Compare(a.Number, b.Number); c != 0 {
			return c
		}
		return cmp.Compare(rank(a), rank(b))
	})
	return out
}
