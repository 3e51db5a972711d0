package reader

import (
	"time"

	"go.uber.org/zap"

	"github.com/oicur0t/tracex/pkg/models"
)

// Stats summarises what was decoded from one session.
type Stats struct {
	RecordsRead     int64
	LastNumber      uint32
	LastTime        time.Time
	LevelsFound     models.TraceLevel
	CircularStarted bool
	// IndexFallback is set when the circular index area held no usable
	// entry and decoding started at the first physical circular record.
	IndexFallback bool
	Threads       int
	Elapsed       time.Duration
}

// LostViaWrapping estimates how many records were overwritten when the
// circular part wrapped.
func (s Stats) LostViaWrapping() int64 {
	if lost := int64(s.LastNumber) - s.RecordsRead; lost > 0 {
		return lost
	}
	return 0
}

// Session decodes the records of one logical session. Use it like an
// iterator:
//
//	for sess.Next() {
//		rec := sess.Record()
//	}
//	reason := sess.Stop()
type Session struct {
	rd     *Reader
	logger *zap.Logger
	info   models.SessionInfo

	threads map[int32]*threadState
	order   []*threadState
	cur     *threadState

	// Session-level values inherited by records that omit them.
	number uint32
	time   time.Time
	msg    string

	sizeCap       int64
	circularStart int64
	firstCircular bool
	lastLinear    uint32
	sessionEnd    int64

	maxThreadID int32
	started     time.Time

	rec   *models.Record
	stop  StopReason
	done  bool
	stats Stats
}

func newSession(rd *Reader, info models.SessionInfo) *Session {
	return &Session{
		rd:      rd,
		logger:  rd.logger.With(zap.Int("session", info.Index)),
		info:    info,
		threads: make(map[int32]*threadState),
		sizeCap: info.SizeCap(),
		started: time.Now(),
	}
}

// Info returns the session preamble.
func (s *Session) Info() models.SessionInfo { return s.info }

// Next decodes the next record. It returns false once the session has no
// more records; Stop then tells why.
func (s *Session) Next() bool {
	if s.done {
		return false
	}
	rec, stop := s.readRecord()
	if stop != StopNone {
		s.finish(stop)
		return false
	}
	s.rec = rec
	return true
}

// Record returns the record decoded by the last successful call to Next.
func (s *Session) Record() *models.Record { return s.rec }

// Stop returns the reason the session ended, or StopNone while it is in
// progress.
func (s *Session) Stop() StopReason { return s.stop }

// Done reports whether the session has stopped.
func (s *Session) Done() bool { return s.done }

// Stats returns the decode statistics so far.
func (s *Session) Stats() Stats {
	st := s.stats
	st.Threads = len(s.order)
	if s.done {
		return st
	}
	st.Elapsed = time.Since(s.started)
	return st
}

// drain reads and discards the remaining records.
func (s *Session) drain() {
	for s.Next() {
	}
}

func (s *Session) finish(stop StopReason) {
	s.done = true
	s.stop = stop
	s.rec = nil
	s.stats.Elapsed = time.Since(s.started)

	// Only an explicit end marker in the linear part is followed by
	// another session.
	next := int64(-1)
	if stop == StopSessionEnd && s.circularStart == 0 && s.info.FormatVersion >= 6 {
		next = s.sessionEnd
	}
	s.rd.sessionDone(s, next)

	s.logger.Debug("Session finished",
		zap.Stringer("stop", stop),
		zap.Int64("records", s.stats.RecordsRead),
		zap.Uint32("last_number", s.stats.LastNumber),
		zap.Int("threads", len(s.order)),
		zap.Bool("circular", s.stats.CircularStarted))
}

// thread returns the decode state for an offset thread ID, creating it on
// first sight.
func (s *Session) thread(id int32) *threadState {
	if t, ok := s.threads[id]; ok {
		return t
	}
	t := newThreadState(s.rd.registry.Thread(id))
	s.threads[id] = t
	s.order = append(s.order, t)
	if id > s.maxThreadID {
		s.maxThreadID = id
	}
	return t
}
