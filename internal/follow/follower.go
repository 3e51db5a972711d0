// Package follow re-decodes a trace file whenever it changes and reports
// the records not seen before.
package follow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nxadm/tail/watch"
	"go.uber.org/zap"
	"gopkg.in/tomb.v1"

	"github.com/oicur0t/tracex/internal/filter"
	"github.com/oicur0t/tracex/internal/loader"
	"github.com/oicur0t/tracex/internal/reader"
	"github.com/oicur0t/tracex/pkg/models"
)

type recordKey struct {
	session     int
	number      uint32
	thread      int32
	synthesized bool
	exit        bool
	// depth tells apart synthesized records of one thread, which can
	// share a record number.
	depth int
}

func keyOf(rec *models.Record) recordKey {
	k := recordKey{
		session:     rec.Session,
		number:      rec.Number,
		thread:      rec.ThreadID(),
		synthesized: rec.Synthesized,
		exit:        rec.Exit,
	}
	if rec.Synthesized {
		k.depth = rec.Depth
	}
	return k
}

// Follower watches one trace file.
type Follower struct {
	path      string
	poll      time.Duration
	logger    *zap.Logger
	filter    *filter.Filter
	loader    *loader.Loader
	password  reader.PasswordPrompter
	passwords *reader.PasswordCache

	registry *reader.Registry
	emitted  map[recordKey]struct{}
	size     int64
}

// New creates a new Follower. A zero poll interval uses inotify. f may be nil.
func New(path string, poll time.Duration, password reader.PasswordPrompter, f *filter.Filter, logger *zap.Logger) *Follower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		path:      path,
		poll:      poll,
		logger:    logger,
		filter:    f,
		loader:    loader.New(logger),
		password:  password,
		passwords: &reader.PasswordCache{},
		emitted:   make(map[recordKey]struct{}),
	}
}

// Registry returns the registry of the last refresh.
func (f *Follower) Registry() *reader.Registry { return f.registry }

// Refresh decodes the whole file again and returns, in display order, the
// records that were not returned by an earlier refresh. Entity objects and
// the accepted password carry over from the previous refresh.
func (f *Follower) Refresh(ctx context.Context) ([]*models.Record, error) {
	reg := reader.NewRegistry()
	reg.Reuse(f.registry)

	rd, err := reader.Open(ctx, f.path, reader.Options{
		Logger:    f.logger,
		Password:  f.password,
		Passwords: f.passwords,
		Registry:  reg,
	})
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	sessions, err := f.loader.Collect(ctx, rd)
	if err != nil && !errors.Is(err, reader.ErrCorruptPreamble) {
		return nil, err
	}
	if err != nil {
		f.logger.Warn("Stopped at corrupt session", zap.String("file", f.path), zap.Error(err))
	}

	f.registry = reg
	if f.filter != nil {
		f.filter.Apply(reg)
	}
	if info, err := os.Stat(f.path); err == nil {
		f.size = info.Size()
	}

	var fresh []*models.Record
	for _, s := range sessions {
		for _, rec := range s.Records {
			if !f.filter.Allows(rec) {
				continue
			}
			k := keyOf(rec)
			if _, seen := f.emitted[k]; seen {
				continue
			}
			f.emitted[k] = struct{}{}
			fresh = append(fresh, rec)
		}
	}

	f.logger.Debug("Refreshed trace file",
		zap.String("file", f.path),
		zap.Int("sessions", len(sessions)),
		zap.Int("new_records", len(fresh)))
	return fresh, nil
}

// Reset forgets which records were returned, e.g. after the file was
// truncated or replaced.
func (f *Follower) Reset() {
	f.emitted = make(map[recordKey]struct{})
	f.size = 0
}

func (f *Follower) newWatcher() watch.FileWatcher {
	if f.poll > 0 {
		watch.POLL_DURATION = f.poll
		return watch.NewPollingFileWatcher(f.path)
	}
	return watch.NewInotifyFileWatcher(f.path)
}

// Run refreshes once, then again on every change of the file, passing the
// new records to emit. It returns when ctx is done or emit fails.
func (f *Follower) Run(ctx context.Context, emit func([]*models.Record) error) error {
	w := f.newWatcher()
	f.logger.Info("Following trace file", zap.String("file", f.path), zap.Duration("poll_interval", f.poll))

	refresh := func() error {
		recs, err := f.Refresh(ctx)
		if err != nil {
			if errors.Is(err, reader.ErrAccessDenied) || errors.Is(err, reader.ErrUnsupportedVersion) {
				return err
			}
			// A file caught mid-rewrite decodes on the next change.
			f.logger.Warn("Refresh failed", zap.String("file", f.path), zap.Error(err))
			return nil
		}
		if len(recs) == 0 {
			return nil
		}
		return emit(recs)
	}

	for {
		if err := f.waitExists(ctx, w); err != nil {
			return err
		}
		if err := refresh(); err != nil {
			return err
		}

		var t tomb.Tomb
		changes, err := w.ChangeEvents(&t, f.size)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", f.path, err)
		}

		deleted := false
		for !deleted {
			select {
			case <-ctx.Done():
				t.Kill(nil)
				return ctx.Err()
			case <-changes.Modified:
				if err := refresh(); err != nil {
					t.Kill(nil)
					return err
				}
			case <-changes.Truncated:
				f.logger.Info("Trace file truncated, starting over", zap.String("file", f.path))
				f.Reset()
				if err := refresh(); err != nil {
					t.Kill(nil)
					return err
				}
			case <-changes.Deleted:
				f.logger.Info("Trace file deleted, waiting for it to reappear", zap.String("file", f.path))
				t.Kill(nil)
				f.Reset()
				deleted = true
			}
		}
	}
}

func (f *Follower) waitExists(ctx context.Context, w watch.FileWatcher) error {
	var t tomb.Tomb
	stop := context.AfterFunc(ctx, func() { t.Kill(nil) })
	defer stop()

	if err := w.BlockUntilExists(&t); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to wait for %s: %w", f.path, err)
	}
	return nil
}
