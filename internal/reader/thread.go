package reader

import (
	"strconv"

	"github.com/oicur0t/tracex/internal/binfmt"
	"github.com/oicur0t/tracex/pkg/models"
)

// threadState is the decode state of one thread within a session. Fields a
// record leaves out are inherited from here.
type threadState struct {
	thread *models.ThreadObject
	name   *models.ThreadName
	level  models.TraceLevel
	logger *models.LoggerObject
	method *models.MethodObject
	depth  int

	// stack holds the entry records of the linear part not yet matched by
	// an exit.
	stack []*models.Record
	// seen holds the numbers of entry records read in the circular part
	// before the thread's first call-stack snapshot.
	seen       map[uint32]struct{}
	reconciled bool

	// missingEntries is innermost first; missingExits is in file order.
	missingEntries []*models.Record
	missingExits   []*models.Record
}

func newThreadState(thread *models.ThreadObject) *threadState {
	return &threadState{thread: thread}
}

func defaultThreadName(id int32) string {
	return "Thread " + strconv.FormatInt(int64(id), 10)
}

func (t *threadState) push(rec *models.Record) {
	t.stack = append(t.stack, rec)
}

func (t *threadState) pop() {
	if n := len(t.stack); n > 0 {
		t.stack[n-1] = nil
		t.stack = t.stack[:n-1]
	}
}

func (t *threadState) noteEntry(number uint32) {
	if t.seen == nil {
		t.seen = make(map[uint32]struct{})
	}
	t.seen[number] = struct{}{}
}

// depthAfterFields returns the depth a record reports, given the thread's
// current depth and the record's explicit depth (valid when flags has
// StackDepth). Never negative.
func depthAfterFields(version int32, flags binfmt.DataFlags, cur, explicit int) int {
	depth := cur
	switch {
	case flags.Has(binfmt.StackDepth):
		depth = explicit
		if version >= 5 && flags.Has(binfmt.MethodExit) {
			depth--
		}
	case flags.Has(binfmt.MethodExit):
		depth--
	}
	if depth < 0 {
		return 0
	}
	return depth
}
