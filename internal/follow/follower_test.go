package follow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/oicur0t/tracex/internal/binfmt"
	"github.com/oicur0t/tracex/internal/config"
	"github.com/oicur0t/tracex/internal/filter"
	"github.com/oicur0t/tracex/internal/reader"
	"github.com/oicur0t/tracex/internal/testutil"
	"github.com/oicur0t/tracex/pkg/models"
)

// traceWith builds a file whose first record is on thread 1 with logger
// "App" and whose remaining n-1 records inherit it.
func traceWith(n int, hash *int32) *testutil.Builder {
	b := testutil.NewFile(5)
	if hash != nil {
		b.Password(*hash)
	} else {
		b.NoPassword()
	}
	b.Preamble(testutil.DefaultPreamble()).
		Record(testutil.Rec{Flags: binfmt.ThreadID | binfmt.LoggerName | binfmt.Message, ThreadID: 1, Logger: "App", Message: "start"})
	for i := 1; i < n; i++ {
		b.Record(testutil.Rec{Flags: binfmt.Message, Message: "more"})
	}
	return b
}

func writeTrace(t *testing.T, path string, b *testutil.Builder) {
	t.Helper()
	if err := os.WriteFile(path, b.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestRefresh_ReturnsOnlyNewRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.tx1")
	writeTrace(t, path, traceWith(3, nil))

	f := New(path, 0, nil, nil, zaptest.NewLogger(t))
	first, err := f.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("first refresh returned %d records, want 3", len(first))
	}
	logger := first[0].Logger

	writeTrace(t, path, traceWith(5, nil))
	second, err := f.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(second) != 2 || second[0].Number != 4 || second[1].Number != 5 {
		t.Fatalf("second refresh = %d records, want numbers 4 and 5", len(second))
	}
	if second[0].Logger != logger {
		t.Fatal("logger object was not reused across refresh")
	}

	f.Reset()
	again, err := f.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(again) != 5 {
		t.Fatalf("refresh after Reset returned %d records, want 5", len(again))
	}
}

func TestRefresh_FilterStaysApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.tx1")
	writeTrace(t, path, traceWith(2, nil))

	flt, err := filter.New(config.FilterConfig{HideLoggers: []string{"App"}})
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}
	f := New(path, 0, nil, flt, zaptest.NewLogger(t))
	if recs, err := f.Refresh(context.Background()); err != nil || len(recs) != 0 {
		t.Fatalf("Refresh = %d records, %v; want none", len(recs), err)
	}
	hidden := f.Registry().Loggers()[0]
	if !hidden.Hidden {
		t.Fatal("logger not marked hidden")
	}

	writeTrace(t, path, traceWith(4, nil))
	if recs, err := f.Refresh(context.Background()); err != nil || len(recs) != 0 {
		t.Fatalf("Refresh = %d records, %v; want none", len(recs), err)
	}
	if f.Registry().Loggers()[0] != hidden {
		t.Fatal("hidden logger object was replaced")
	}
}

func TestRefresh_PasswordAskedOnce(t *testing.T) {
	hash := reader.HashPassword("s3cret")
	path := filepath.Join(t.TempDir(), "locked.tx1")
	writeTrace(t, path, traceWith(1, &hash))

	calls := 0
	prompt := reader.PasswordFunc(func(_ context.Context, h int32) (bool, error) {
		calls++
		return h == hash, nil
	})
	f := New(path, 0, prompt, nil, zaptest.NewLogger(t))
	for i := 0; i < 3; i++ {
		writeTrace(t, path, traceWith(i+1, &hash))
		if _, err := f.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("password prompted %d times, want 1", calls)
	}
}

func TestRefresh_EmitsEverySynthesizedExit(t *testing.T) {
	// A calls B in the linear part; the first circular record shows an
	// empty stack, so both exits were overwritten.
	b := testutil.NewFile(5).NoPassword().Preamble(testutil.DefaultPreamble()).
		Record(testutil.Rec{Flags: binfmt.ThreadID | binfmt.MethodName | binfmt.MethodEntry, ThreadID: 1, Method: "A"}).
		Record(testutil.Rec{Flags: binfmt.MethodName | binfmt.MethodEntry, Method: "B"})
	area := b.CircularStart(1)
	b.SetIndexEntry(area, 0, 1, b.Offset())
	b.CircularRecord(testutil.Rec{Number: 9, Flags: binfmt.ThreadID | binfmt.StackDepth | binfmt.Message, ThreadID: 1, Depth: 0, Message: "idle"})
	path := b.WriteFile(t, "wrapped.tx1")

	f := New(path, 0, nil, nil, nil)
	recs, err := f.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	exits := map[string]bool{}
	for _, rec := range recs {
		if rec.Synthesized && rec.Exit {
			exits[rec.MethodName()] = true
		}
	}
	if len(recs) != 5 || !exits["A"] || !exits["B"] {
		t.Fatalf("Refresh = %d records with synthesized exits %v, want 5 with exits of A and B", len(recs), exits)
	}

	again, err := f.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second Refresh = %d records, want none", len(again))
	}
}

func TestRun_EmitsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.tx1")
	writeTrace(t, path, traceWith(2, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	batches := make(chan []*models.Record, 16)
	f := New(path, 10*time.Millisecond, nil, nil, zaptest.NewLogger(t))
	errc := make(chan error, 1)
	go func() {
		errc <- f.Run(ctx, func(recs []*models.Record) error {
			batches <- recs
			return nil
		})
	}()

	next := func() []*models.Record {
		t.Helper()
		select {
		case recs := <-batches:
			return recs
		case <-time.After(5 * time.Second):
			t.Fatal("no records emitted")
			return nil
		}
	}

	if recs := next(); len(recs) != 2 {
		t.Fatalf("initial batch has %d records, want 2", len(recs))
	}

	// Append rather than rewrite so the watcher never sees a shorter file.
	grown := traceWith(6, nil).Bytes()
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := fh.Write(grown[len(traceWith(2, nil).Bytes()):]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	fh.Close()
	if recs := next(); len(recs) != 4 || recs[0].Number != 3 {
		t.Fatalf("batch after change = %d records, want 4 starting at 3", len(recs))
	}

	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
