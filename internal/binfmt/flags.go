package binfmt

// DataFlags is the bitmask that starts every record and selects which
// optional fields follow. Fields are always written in bit order.
type DataFlags uint16

const (
	LineNumber    DataFlags = 0x0001
	Time          DataFlags = 0x0002
	ThreadID      DataFlags = 0x0004
	ThreadName    DataFlags = 0x0008
	TraceLevel    DataFlags = 0x0010
	StackDepth    DataFlags = 0x0020
	LoggerName    DataFlags = 0x0040
	MethodName    DataFlags = 0x0080
	Message       DataFlags = 0x0100
	MethodEntry   DataFlags = 0x0200
	MethodExit    DataFlags = 0x0400
	CircularStart DataFlags = 0x0800
	LastRecord    DataFlags = 0x1000

	// InvalidOnes are bits no writer ever sets.
	InvalidOnes DataFlags = 0xE000
)

// Has reports whether bit is set.
func (f DataFlags) Has(bit DataFlags) bool {
	return f&bit != 0
}

// ValidInCircular is a sanity check on a record read from the circular
// part of a log, where random leftover bytes can carry the expected
// record number by chance.
func (f DataFlags) ValidInCircular() bool {
	if f.Has(InvalidOnes) {
		return false
	}
	// CircularStart appears once per session, before the circular part.
	if f.Has(CircularStart) {
		return false
	}
	// Every circular record is prefixed with its number.
	if f.Has(LineNumber) {
		return false
	}
	if f.Has(MethodEntry) && f.Has(MethodExit) {
		return false
	}
	return true
}
