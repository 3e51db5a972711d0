package reader

import (
	"fmt"
	"time"

	"github.com/oicur0t/tracex/pkg/models"
)

// frame is one entry of a call-stack snapshot.
type frame struct {
	entryNumber uint32
	level       models.TraceLevel
	logger      *models.LoggerObject
	method      *models.MethodObject
}

// readSnapshot reads depth frames, which are written innermost first, and
// returns them outermost first.
func (s *Session) readSnapshot(depth int) ([]frame, error) {
	r := s.rd.r
	stack := make([]frame, depth)
	for i := depth - 1; i >= 0; i-- {
		num, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("frame %d number: %w", i, err)
		}
		level, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("frame %d level: %w", i, err)
		}
		logger, err := r.ReadString()
		if err != nil {
			return nil, fmt.Errorf("frame %d logger: %w", i, err)
		}
		method, err := r.ReadString()
		if err != nil {
			return nil, fmt.Errorf("frame %d method: %w", i, err)
		}
		stack[i] = frame{
			entryNumber: num,
			level:       models.TraceLevel(level),
			logger:      s.rd.registry.Logger(logger),
			method:      s.rd.registry.Method(method),
		}
	}
	return stack, nil
}

// reconcile compares the thread's first snapshot in the circular part with
// what was learned about its stack before, and queues entry records for
// frames never seen and exit records for known frames that are gone. Later
// snapshots of the same thread are ignored.
func (s *Session) reconcile(t *threadState, trueStack []frame, now time.Time) {
	if t.reconciled {
		return
	}
	t.reconciled = true

	known := make(map[uint32]struct{}, len(t.stack)+len(t.seen))
	for _, rec := range t.stack {
		known[rec.Number] = struct{}{}
	}
	for num := range t.seen {
		known[num] = struct{}{}
	}
	live := make(map[uint32]struct{}, len(trueStack))
	for _, f := range trueStack {
		live[f.entryNumber] = struct{}{}
	}

	for i := len(trueStack) - 1; i >= 0; i-- {
		f := trueStack[i]
		if _, ok := known[f.entryNumber]; ok {
			continue
		}
		t.missingEntries = append(t.missingEntries, &models.Record{
			Number:      f.entryNumber,
			Time:        now,
			Session:     s.info.Index,
			Thread:      t.thread,
			ThreadName:  t.name,
			Level:       f.level,
			Logger:      f.logger,
			Method:      f.method,
			Depth:       i,
			Entry:       true,
			Synthesized: true,
		})
	}

	for i := len(t.stack) - 1; i >= 0; i-- {
		entry := t.stack[i]
		if _, ok := live[entry.Number]; ok {
			continue
		}
		t.missingExits = append(t.missingExits, &models.Record{
			Number:      s.lastLinear,
			Time:        now,
			Session:     s.info.Index,
			Thread:      t.thread,
			ThreadName:  t.name,
			Level:       entry.Level,
			Logger:      entry.Logger,
			Method:      entry.Method,
			Depth:       entry.Depth,
			Exit:        true,
			Synthesized: true,
		})
	}

	t.stack = nil
	t.seen = nil
}

// MissingEntryRecords returns the method entry records synthesized for frames
// whose original entry was overwritten, per thread in chronological order.
// It returns nil until the session has stopped.
func (s *Session) MissingEntryRecords() []*models.Record {
	if !s.done {
		return nil
	}
	var out []*models.Record
	for _, t := range s.order {
		for i := len(t.missingEntries) - 1; i >= 0; i-- {
			out = append(out, t.missingEntries[i])
		}
	}
	return out
}

// MissingExitRecords returns the method exit records synthesized for frames
// that ended while their exit was overwritten, in file order. It returns nil
// until the session has stopped.
func (s *Session) MissingExitRecords() []*models.Record {
	if !s.done {
		return nil
	}
	var out []*models.Record
	for _, t := range s.order {
		out = append(out, t.missingExits...)
	}
	return out
}
