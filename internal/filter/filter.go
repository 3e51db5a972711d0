// Package filter hides records by thread, logger, method or level.
package filter

import (
	"strings"

	"github.com/oicur0t/tracex/internal/config"
	"github.com/oicur0t/tracex/internal/reader"
	"github.com/oicur0t/tracex/pkg/models"
)

// Filter decides which records are shown. Names ending in "*" match by
// prefix: "App.Db*" hides every logger whose name starts with App.Db.
type Filter struct {
	threads     map[int32]bool
	threadNames []string
	loggers     []string
	methods     []string
	levels      models.TraceLevel
}

// New builds a filter from its configuration.
func New(cfg config.FilterConfig) (*Filter, error) {
	f := &Filter{
		threads:     make(map[int32]bool, len(cfg.HideThreads)),
		threadNames: cfg.HideThreadNames,
		loggers:     cfg.HideLoggers,
		methods:     cfg.HideMethods,
	}
	for _, id := range cfg.HideThreads {
		f.threads[id] = true
	}
	for _, name := range cfg.Levels {
		level, err := models.ParseTraceLevel(name)
		if err != nil {
			return nil, err
		}
		f.levels |= level
	}
	return f, nil
}

func matches(patterns []string, name string) bool {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		} else if p == name {
			return true
		}
	}
	return false
}

// Apply marks the matching entities of reg hidden. Entities a refreshed
// registry reuses keep the mark.
func (f *Filter) Apply(reg *reader.Registry) {
	for _, t := range reg.Threads() {
		if f.threads[t.ID] {
			t.Hidden = true
		}
	}
	for _, n := range reg.ThreadNames() {
		if matches(f.threadNames, n.Name) {
			n.Hidden = true
		}
	}
	for _, l := range reg.Loggers() {
		if matches(f.loggers, l.Name) {
			l.Hidden = true
		}
	}
	for _, m := range reg.Methods() {
		if matches(f.methods, m.Name) {
			m.Hidden = true
		}
	}
}

// Allows reports whether rec is shown. It checks the configured rules
// directly, so it also works on records whose entities Apply has not seen,
// and honours entities hidden by other means.
func (f *Filter) Allows(rec *models.Record) bool {
	if f == nil {
		return rec.Visible()
	}
	if f.levels != 0 && rec.Level&f.levels == 0 {
		return false
	}
	if f.threads[rec.ThreadID()] ||
		matches(f.threadNames, rec.ThreadNameString()) ||
		matches(f.loggers, rec.LoggerName()) ||
		matches(f.methods, rec.MethodName()) {
		return false
	}
	return rec.Visible()
}
