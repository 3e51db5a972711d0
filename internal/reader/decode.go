package reader

import (
	"errors"

	"go.uber.org/zap"

	"github.com/oicur0t/tracex/internal/binfmt"
	"github.com/oicur0t/tracex/pkg/models"
)

func (s *Session) readRecord() (*models.Record, StopReason) {
	flags, stop := s.readFlags()
	if stop != StopNone {
		return nil, stop
	}

	rec, err := s.decodeFields(flags)
	if err != nil {
		s.logger.Debug("Record decode stopped",
			zap.Uint16("flags", uint16(flags)),
			zap.Int64("offset", s.rd.r.Position()),
			zap.Error(err))
		if errors.Is(err, errNoThread) {
			return nil, StopCorrupt
		}
		return nil, faultReason(err)
	}

	if stop := s.wrap(); stop != StopNone {
		return nil, stop
	}

	s.stats.RecordsRead++
	s.stats.LastNumber = rec.Number
	s.stats.LastTime = rec.Time
	return rec, StopNone
}

// decodeFields reads the fields selected by flags, in bit order, and builds
// the record. Fields left out are inherited from the session or thread.
func (s *Session) decodeFields(flags binfmt.DataFlags) (*models.Record, error) {
	r := s.rd.r
	reg := s.rd.registry
	circular := s.circularStart != 0
	version := s.info.FormatVersion

	if flags.Has(binfmt.LineNumber) {
		n, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		s.number = n
	} else if !circular {
		s.number++
	}

	if flags.Has(binfmt.Time) {
		ts, err := r.ReadTicks()
		if err != nil {
			return nil, err
		}
		s.time = ts
	}

	if flags.Has(binfmt.ThreadID) {
		id, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		s.cur = s.thread(id + s.info.ThreadIDOffset)
	}
	t := s.cur
	if t == nil {
		return nil, errNoThread
	}

	if flags.Has(binfmt.ThreadName) {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		// Pooled threads may go back to having no name.
		if name == "" {
			name = defaultThreadName(t.thread.ID)
		}
		t.name = reg.ThreadName(name)
	} else if t.name == nil {
		t.name = reg.ThreadName(defaultThreadName(t.thread.ID))
	}

	if flags.Has(binfmt.TraceLevel) {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		t.level = models.TraceLevel(b)
		s.stats.LevelsFound |= t.level
	}

	explicit := 0
	if flags.Has(binfmt.StackDepth) {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		explicit = int(b)
		if version >= 5 && circular {
			var stack []frame
			if explicit > 0 {
				if stack, err = s.readSnapshot(explicit); err != nil {
					return nil, err
				}
			}
			s.reconcile(t, stack, s.time)
		}
	}
	t.depth = depthAfterFields(version, flags, t.depth, explicit)

	if flags.Has(binfmt.LoggerName) {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		t.logger = reg.Logger(name)
	}

	if flags.Has(binfmt.MethodName) {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		t.method = reg.Method(name)
	}

	if flags.Has(binfmt.Message) {
		msg, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		s.msg = msg
	}

	// The record shows the state before its own entry or exit.
	rec := &models.Record{
		Number:     s.number,
		Time:       s.time,
		Session:    s.info.Index,
		Thread:     t.thread,
		ThreadName: t.name,
		Level:      t.level,
		Logger:     t.logger,
		Method:     t.method,
		Depth:      t.depth,
		Message:    s.msg,
		Entry:      flags.Has(binfmt.MethodEntry),
		Exit:       flags.Has(binfmt.MethodExit),
	}

	switch {
	case rec.Entry:
		t.depth++
		if version >= 5 {
			if !circular {
				t.push(rec)
			} else if !t.reconciled {
				t.noteEntry(rec.Number)
			}
		}
	case rec.Exit && version >= 5 && !circular:
		t.pop()
	}

	return rec, nil
}
