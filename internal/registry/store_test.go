package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/scan"
)

func sqliteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "registry.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func sampleTargets() []models.Target {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []models.Target{
		{ID: "b", Name: "second", Position: 1, Priority: 5, IsActive: true, Locator: "/b", CreatedAt: now, UpdatedAt: now},
		{ID: "a", Name: "first", Position: 0, Priority: 3, Locator: "/a", CreatedAt: now, UpdatedAt: now},
	}
}

func TestStores_RoundTripKeepsOrder(t *testing.T) {
	stores := map[string]Store{
		"file":   fileStore(t),
		"sqlite": sqliteStore(t),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			empty, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("Load empty: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("fresh store returned %d targets", len(empty))
			}
			if err := s.Save(ctx, sampleTargets()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("loaded %d targets", len(got))
			}
			if name == "file" && (got[0].ID != "b" || got[1].ID != "a") {
				t.Errorf("file store order = %s,%s; want snapshot order b,a", got[0].ID, got[1].ID)
			}
			if name == "sqlite" && (got[0].ID != "a" || got[1].ID != "b") {
				t.Errorf("sqlite order = %s,%s; want position order a,b", got[0].ID, got[1].ID)
			}

			if err := s.Save(ctx, sampleTargets()[:1]); err != nil {
				t.Fatalf("Save shrink: %v", err)
			}
			got, _ = s.Load(ctx)
			if len(got) != 1 || got[0].ID != "b" {
				t.Errorf("full rewrite should drop removed targets, got %+v", got)
			}
		})
	}
}

func TestFileStore_NoLeftoverTemps(t *testing.T) {
	s := fileStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Save(context.Background(), sampleTargets()); err != nil {
			t.Fatal(err)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), ".attune-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestFileStore_CorruptSnapshot(t *testing.T) {
	s := fileStore(t)
	_ = os.MkdirAll(filepath.Dir(s.Path()), 0o755)
	_ = os.WriteFile(s.Path(), []byte("{not json"), 0o644)
	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestFileStore_RejectsDirectory(t *testing.T) {
	if _, err := NewFileStore(t.TempDir()); err == nil {
		t.Error("expected error when path is a directory")
	}
}

func TestRegistry_SurvivesReopen(t *testing.T) {
	for name, open := range map[string]func(path string) (Store, error){
		"file":   func(p string) (Store, error) { return NewFileStore(p + ".json") },
		"sqlite": func(p string) (Store, error) { return OpenSQLite(p + ".db") },
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "registry")

			s1, err := open(path)
			if err != nil {
				t.Fatal(err)
			}
			reg, err := Open(ctx, s1, scan.DirCounter{})
			if err != nil {
				t.Fatal(err)
			}
			a, _ := reg.Create(ctx, models.TargetInput{Name: "a", Locator: "/a"})
			b, _ := reg.Create(ctx, models.TargetInput{Name: "b", Locator: "/b"})
			_, _ = reg.RecordOutcome(ctx, a.ID, models.OutcomeDelta{Servings: 2, Repetitions: 4})
			_ = s1.Close()

			s2, err := open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer s2.Close()
			reopened, err := Open(ctx, s2, nil)
			if err != nil {
				t.Fatal(err)
			}
			list, _ := reopened.List(ctx, models.TargetFilter{})
			if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
				t.Fatalf("reopened order = %+v", list)
			}
			if list[0].Usage.TotalServings != 2 {
				t.Errorf("usage lost on reopen: %+v", list[0].Usage)
			}
			c, _ := reopened.Create(ctx, models.TargetInput{Name: "c", Locator: "/c"})
			if c.Position <= list[1].Position {
				t.Errorf("position %d not after %d", c.Position, list[1].Position)
			}
		})
	}
}
