package display

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/attune/internal/apperr"
	"github.com/starford/attune/internal/models"
)

func dirWithItems(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%02d.png", i)), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_ = os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644)
	return dir
}

func TestLocal_AdvanceWalksItems(t *testing.T) {
	l := NewLocal(nil)
	dir := dirWithItems(t, 2)
	id, err := l.Open(context.Background(), TargetConfig{
		SourceType:         models.SourceDirectory,
		Locator:            dir,
		RepetitionsPerItem: 2,
		DisplayDuration:    100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// 50ms is half an interval: nothing completes yet.
	p, _ := l.Advance(id, 50*time.Millisecond)
	if p.RepetitionsDone != 0 || filepath.Base(p.CurrentItem) != "00.png" {
		t.Fatalf("after half interval: %+v", p)
	}
	// Completes repetition 1 of item 0.
	p, _ = l.Advance(id, 50*time.Millisecond)
	if p.RepetitionsDone != 1 || p.ItemsShown != 0 {
		t.Fatalf("after first interval: %+v", p)
	}
	// 400ms = 4 repetitions: finishes item 0, item 1, then one rep of item 0 again.
	p, _ = l.Advance(id, 400*time.Millisecond)
	if p.RepetitionsDone != 4 || p.ItemsShown != 2 {
		t.Fatalf("after long advance: %+v", p)
	}
	if filepath.Base(p.CurrentItem) != "00.png" {
		t.Errorf("expected wrap to first item, got %s", p.CurrentItem)
	}

	st, _ := l.Stats(id)
	if st.RepetitionsTotal != 5 || st.ItemsServed != 2 || st.DurationElapsed != 500*time.Millisecond {
		t.Errorf("stats = %+v", st)
	}
}

func TestLocal_PauseFreezes(t *testing.T) {
	l := NewLocal(nil)
	id, err := l.Open(context.Background(), TargetConfig{
		SourceType:      models.SourceURL,
		Locator:         "https://example.com/a",
		DisplayDuration: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Pause(id); err != nil {
		t.Fatal(err)
	}
	p, _ := l.Advance(id, time.Second)
	if p.RepetitionsDone != 0 {
		t.Errorf("paused session advanced: %+v", p)
	}
	_ = l.Resume(id)
	p, _ = l.Advance(id, 30*time.Millisecond)
	if p.RepetitionsDone != 3 || p.ItemsShown != 3 {
		t.Errorf("resumed progress = %+v", p)
	}
}

func TestLocal_OpenFailures(t *testing.T) {
	l := NewLocal(nil)
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  TargetConfig
		want error
	}{
		{"empty dir", TargetConfig{SourceType: models.SourceDirectory, Locator: t.TempDir(), DisplayDuration: time.Second}, apperr.ErrSubSession},
		{"missing dir", TargetConfig{SourceType: models.SourceDirectory, Locator: filepath.Join(t.TempDir(), "x"), DisplayDuration: time.Second}, apperr.ErrSubSession},
		{"zero duration", TargetConfig{SourceType: models.SourceURL, Locator: "https://x"}, apperr.ErrValidation},
	}
	for _, tc := range cases {
		if _, err := l.Open(ctx, tc.cfg); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if l.Active() != 0 {
		t.Errorf("failed opens left %d sessions", l.Active())
	}
}

func TestLocal_CloseForgetsSession(t *testing.T) {
	l := NewLocal(nil)
	id, _ := l.Open(context.Background(), TargetConfig{SourceType: models.SourceURL, Locator: "https://x", DisplayDuration: time.Second})
	if _, err := l.Close(id); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Advance(id, time.Second); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("advance after close err = %v", err)
	}
	if _, err := l.Close(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("double close err = %v", err)
	}
}
