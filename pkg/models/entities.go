package models

// The entity types below are interned by the reader: one object exists per
// distinct key within a file. The Hidden flag belongs to whoever displays the
// records; the decoder never reads or writes it, and it survives a refresh
// when the object is reused.

// ThreadObject identifies one thread. IDs are unique across all sessions of a file.
type ThreadObject struct {
	ID     int32
	Hidden bool
}

// ThreadName is a thread display name.
type ThreadName struct {
	Name   string
	Hidden bool
}

// LoggerObject is a logger name.
type LoggerObject struct {
	Name   string
	Hidden bool
}

// MethodObject is a method name.
type MethodObject struct {
	Name   string
	Hidden bool
}
