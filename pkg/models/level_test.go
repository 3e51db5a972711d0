package models

import "testing"

func TestTraceLevelString(t *testing.T) {
	tests := []struct {
		level TraceLevel
		want  string
	}{
		{LevelOff, "off"},
		{LevelError, "error"},
		{LevelVerbose, "verbose"},
		{LevelError | LevelInfo, "error+info"},
		{LevelWarn | 0x80, "warn+0x80"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("TraceLevel(%d).String() = %q, want %q", uint8(tt.level), got, tt.want)
		}
	}
}

func TestParseTraceLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    TraceLevel
		wantErr bool
	}{
		{"info", LevelInfo, false},
		{" Warning ", LevelWarn, false},
		{"OFF", LevelOff, false},
		{"loud", LevelOff, true},
	}
	for _, tt := range tests {
		got, err := ParseTraceLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTraceLevel(%q) = %v, %v; want %v, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestTraceLevelHas(t *testing.T) {
	found := LevelError | LevelDebug
	if !found.Has(LevelDebug) || found.Has(LevelInfo) || found.Has(LevelOff) {
		t.Fatalf("Has on %v returned wrong results", found)
	}
}

func TestRecordVisible(t *testing.T) {
	rec := &Record{Thread: &ThreadObject{ID: 1}, Logger: &LoggerObject{Name: "App"}}
	if !rec.Visible() {
		t.Fatal("Visible() = false for record without hidden entities")
	}
	rec.Logger.Hidden = true
	if rec.Visible() {
		t.Fatal("Visible() = true with hidden logger")
	}
	var empty Record
	if empty.ThreadID() != 0 || empty.LoggerName() != "" || !empty.Visible() {
		t.Fatal("zero Record accessors misbehave")
	}
}

func TestSessionInfo(t *testing.T) {
	info := SessionInfo{MaxMb: 2, TzStandard: "CET", TzDaylight: "CEST"}
	if info.SizeCap() != 2<<20 {
		t.Fatalf("SizeCap() = %d, want %d", info.SizeCap(), 2<<20)
	}
	if info.TimeZone() != "CET" {
		t.Fatalf("TimeZone() = %q, want CET", info.TimeZone())
	}
	info.IsDST = true
	if info.TimeZone() != "CEST" {
		t.Fatalf("TimeZone() = %q, want CEST", info.TimeZone())
	}
}
