package models

import "time"

// Record is one decoded log event. Records are never mutated once handed out.
type Record struct {
	// Number is the record number, monotonic within a session.
	Number  uint32
	Time    time.Time
	Session int

	Thread     *ThreadObject
	ThreadName *ThreadName
	Level      TraceLevel
	Logger     *LoggerObject
	Method     *MethodObject

	// Depth is the thread's call depth before this record's own method entry.
	Depth   int
	Message string

	Entry bool
	Exit  bool

	// Synthesized marks method entry/exit records fabricated to replace
	// records lost when a circular log wrapped.
	Synthesized bool
}

// ThreadID returns the thread ID, or 0 when no thread is attached.
func (r *Record) ThreadID() int32 {
	if r.Thread == nil {
		return 0
	}
	return r.Thread.ID
}

// ThreadNameString returns the thread display name.
func (r *Record) ThreadNameString() string {
	if r.ThreadName == nil {
		return ""
	}
	return r.ThreadName.Name
}

// LoggerName returns the logger name.
func (r *Record) LoggerName() string {
	if r.Logger == nil {
		return ""
	}
	return r.Logger.Name
}

// MethodName returns the method name.
func (r *Record) MethodName() string {
	if r.Method == nil {
		return ""
	}
	return r.Method.Name
}

// Visible reports whether none of the record's entities are hidden.
func (r *Record) Visible() bool {
	if r.Thread != nil && r.Thread.Hidden {
		return false
	}
	if r.ThreadName != nil && r.ThreadName.Hidden {
		return false
	}
	if r.Logger != nil && r.Logger.Hidden {
		return false
	}
	if r.Method != nil && r.Method.Hidden {
		return false
	}
	return true
}

// RecordBatch groups records from one source file for delivery to a sink.
type RecordBatch struct {
	Source  string
	LoadID  string
	Records []*Record
}
