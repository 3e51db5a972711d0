package reader

import (
	"sync"

	"github.com/oicur0t/tracex/pkg/models"
)

// table interns values by key. Only the decoding goroutine calls intern, so
// it reads found without locking; the lock guards the append to all, which
// other goroutines may list while decoding is in progress.
type table[K comparable, V any] struct {
	mu    sync.RWMutex
	found map[K]V
	old   map[K]V
	all   []V
}

func newTable[K comparable, V any]() table[K, V] {
	return table[K, V]{found: make(map[K]V), old: make(map[K]V)}
}

func (t *table[K, V]) intern(key K, create func() V) V {
	if v, ok := t.found[key]; ok {
		return v
	}
	v, ok := t.old[key]
	if !ok {
		v = create()
	}

	t.mu.Lock()
	t.found[key] = v
	t.all = append(t.all, v)
	t.mu.Unlock()
	return v
}

func (t *table[K, V]) snapshot() []V {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]V, len(t.all))
	copy(out, t.all)
	return out
}

func (t *table[K, V]) remember(values []V, key func(V) K) {
	for _, v := range values {
		t.old[key(v)] = v
	}
}

// Registry holds the interned thread, thread name, logger and method
// objects of one open file.
type Registry struct {
	threads     table[int32, *models.ThreadObject]
	threadNames table[string, *models.ThreadName]
	loggers     table[string, *models.LoggerObject]
	methods     table[string, *models.MethodObject]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		threads:     newTable[int32, *models.ThreadObject](),
		threadNames: newTable[string, *models.ThreadName](),
		loggers:     newTable[string, *models.LoggerObject](),
		methods:     newTable[string, *models.MethodObject](),
	}
}

// Reuse makes the objects of prev available for reuse. When a thread ID or
// name found while decoding matches one of them, the old object is returned
// instead of a new one, which keeps any state attached to it (such as the
// Hidden flag) across a refresh of the same file. Call before decoding.
func (r *Registry) Reuse(prev *Registry) {
	if prev == nil {
		return
	}
	r.threads.remember(prev.Threads(), func(t *models.ThreadObject) int32 { return t.ID })
	r.threadNames.remember(prev.ThreadNames(), func(n *models.ThreadName) string { return n.Name })
	r.loggers.remember(prev.Loggers(), func(l *models.LoggerObject) string { return l.Name })
	r.methods.remember(prev.Methods(), func(m *models.MethodObject) string { return m.Name })
}

// Thread returns the object for a (session-offset) thread ID.
func (r *Registry) Thread(id int32) *models.ThreadObject {
	return r.threads.intern(id, func() *models.ThreadObject { return &models.ThreadObject{ID: id} })
}

// ThreadName returns the object for a thread display name.
func (r *Registry) ThreadName(name string) *models.ThreadName {
	return r.threadNames.intern(name, func() *models.ThreadName { return &models.ThreadName{Name: name} })
}

// Logger returns the object for a logger name.
func (r *Registry) Logger(name string) *models.LoggerObject {
	return r.loggers.intern(name, func() *models.LoggerObject { return &models.LoggerObject{Name: name} })
}

// Method returns the object for a method name.
func (r *Registry) Method(name string) *models.MethodObject {
	return r.methods.intern(name, func() *models.MethodObject { return &models.MethodObject{Name: name} })
}

// Threads lists the thread objects found so far, in order of discovery.
func (r *Registry) Threads() []*models.ThreadObject { return r.threads.snapshot() }

// ThreadNames lists the thread names found so far.
func (r *Registry) ThreadNames() []*models.ThreadName { return r.threadNames.snapshot() }

// Loggers lists the loggers found so far.
func (r *Registry) Loggers() []*models.LoggerObject { return r.loggers.snapshot() }

// Methods lists the methods found so far.
func (r *Registry) Methods() []*models.MethodObject { return r.methods.snapshot() }
