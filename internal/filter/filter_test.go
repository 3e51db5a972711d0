package filter

import (
	"testing"

	"github.com/oicur0t/tracex/internal/config"
	"github.com/oicur0t/tracex/internal/reader"
	"github.com/oicur0t/tracex/pkg/models"
)

func TestFilter_Allows(t *testing.T) {
	f, err := New(config.FilterConfig{
		HideThreads: []int32{2},
		HideLoggers: []string{"App.Db*"},
		HideMethods: []string{"Tick"},
		Levels:      []string{"error", "info"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := func(thread int32, level models.TraceLevel, logger, method string) *models.Record {
		return &models.Record{
			Thread: &models.ThreadObject{ID: thread},
			Level:  level,
			Logger: &models.LoggerObject{Name: logger},
			Method: &models.MethodObject{Name: method},
		}
	}

	tests := []struct {
		name string
		rec  *models.Record
		want bool
	}{
		{"plain", rec(1, models.LevelInfo, "App", "Run"), true},
		{"hidden thread", rec(2, models.LevelInfo, "App", "Run"), false},
		{"logger prefix", rec(1, models.LevelInfo, "App.Db.Pool", "Run"), false},
		{"logger sibling", rec(1, models.LevelInfo, "App.Dbx", "Run"), false},
		{"logger exact only", rec(1, models.LevelInfo, "App.Web", "Run"), true},
		{"method", rec(1, models.LevelError, "App", "Tick"), false},
		{"level not shown", rec(1, models.LevelDebug, "App", "Run"), false},
	}
	for _, tt := range tests {
		if got := f.Allows(tt.rec); got != tt.want {
			t.Errorf("%s: Allows = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFilter_ApplyMarksEntities(t *testing.T) {
	f, err := New(config.FilterConfig{HideThreadNames: []string{"pool-*"}, HideThreads: []int32{7}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reg := reader.NewRegistry()
	worker := reg.ThreadName("pool-3")
	ui := reg.ThreadName("ui")
	seven := reg.Thread(7)
	f.Apply(reg)

	if !worker.Hidden || ui.Hidden || !seven.Hidden {
		t.Fatalf("hidden = pool:%v ui:%v t7:%v, want true false true", worker.Hidden, ui.Hidden, seven.Hidden)
	}

	next := reader.NewRegistry()
	next.Reuse(reg)
	if got := next.ThreadName("pool-3"); got != worker || !got.Hidden {
		t.Fatal("hidden thread name was not carried into the next registry")
	}
}

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(config.FilterConfig{Levels: []string{"noisy"}}); err == nil {
		t.Fatal("New accepted an unknown level")
	}
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	rec := &models.Record{Logger: &models.LoggerObject{Name: "x", Hidden: true}}
	if f.Allows(rec) {
		t.Fatal("nil filter allowed a hidden record")
	}
}
