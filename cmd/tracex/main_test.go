package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/oicur0t/tracex/internal/binfmt"
	"github.com/oicur0t/tracex/internal/export"
	"github.com/oicur0t/tracex/internal/testutil"
)

func sampleFile(t *testing.T) string {
	t.Helper()
	return testutil.NewFile(5).NoPassword().
		Preamble(testutil.DefaultPreamble()).
		Record(testutil.Rec{
			Flags:    binfmt.ThreadID | binfmt.ThreadName | binfmt.LoggerName | binfmt.MethodName | binfmt.TraceLevel | binfmt.MethodEntry | binfmt.Message,
			ThreadID: 1, ThreadName: "Main", Logger: "App", Method: "Run", Level: 8, Message: "starting",
		}).
		Record(testutil.Rec{Flags: binfmt.Message, Message: "working"}).
		Record(testutil.Rec{Flags: binfmt.LoggerName | binfmt.Message, Logger: "Noise", Message: "chatter"}).
		WriteFile(t, "sample.tx1")
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&app{})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("tracex %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestDumpJSON(t *testing.T) {
	path := sampleFile(t)
	out := execute(t, "dump", path, "--output", "json")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	var doc export.Document
	if err := json.Unmarshal([]byte(lines[0]), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.ThreadName != "Main" || doc.Logger != "App" || doc.Method != "Run" || !doc.Entry || doc.Level != "info" {
		t.Errorf("unexpected first document: %+v", doc)
	}
	if doc.Source != "sample.tx1" {
		t.Errorf("Source = %q, want sample.tx1", doc.Source)
	}
}

func TestDumpText(t *testing.T) {
	path := sampleFile(t)
	out := execute(t, "dump", path)
	if !strings.Contains(out, "{ starting") || !strings.Contains(out, "working") {
		t.Fatalf("text output missing records:\n%s", out)
	}
}

func TestDumpConfigFilter(t *testing.T) {
	path := sampleFile(t)
	cfgPath := filepath.Join(t.TempDir(), "tracex.yaml")
	writeConfig(t, cfgPath, "filters:\n  hide_loggers: [\"Noise\"]\n")

	out := execute(t, "--config", cfgPath, "dump", path)
	if strings.Contains(out, "chatter") {
		t.Fatalf("hidden logger printed:\n%s", out)
	}
	if !strings.Contains(out, "working") {
		t.Fatalf("visible record missing:\n%s", out)
	}
}

func TestInfo(t *testing.T) {
	path := sampleFile(t)
	out := execute(t, "info", path)
	for _, want := range []string{"Format version:  5", "Session 0", "Producer:        5.1.0.0", "Stopped:         end_of_stream"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}
}

func TestExportSQLite(t *testing.T) {
	path := sampleFile(t)
	dbPath := filepath.Join(t.TempDir(), "out.db")
	out := execute(t, "export", path, "--sink", "sqlite", "--sqlite-path", dbPath)

	m := regexp.MustCompile(`load ([0-9a-f-]{36})`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no load id in output:\n%s", out)
	}

	sink, err := export.NewSQLiteSink(dbPath, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	defer sink.Close(context.Background())

	n, err := sink.Count(context.Background(), m[1])
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}
