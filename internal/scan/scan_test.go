package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/attune/internal/models"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCountDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.jpg", "b.PNG", "sub/c.webp", "notes.txt", ".hidden/d.jpg", ".e.jpg")

	n, err := DirCounter{}.Count(context.Background(), models.SourceDirectory, root)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestListItemsSorted(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "z.jpg", "a.jpg", "m/b.png")
	items, err := ListItems(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %v", items)
	}
	for i := 1; i < len(items); i++ {
		if items[i-1] > items[i] {
			t.Errorf("items not sorted: %v", items)
		}
	}
}

func TestCountURLIsZero(t *testing.T) {
	n, err := DirCounter{}.Count(context.Background(), models.SourceURL, "https://example.com/album")
	if err != nil || n != 0 {
		t.Errorf("url count = %d, %v; want 0, nil", n, err)
	}
}

func TestCountMissingDirectory(t *testing.T) {
	_, err := DirCounter{}.Count(context.Background(), models.SourceDirectory, filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestCountFileIsNotDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "one.jpg")
	_, err := DirCounter{}.Count(context.Background(), models.SourceDirectory, filepath.Join(root, "one.jpg"))
	if err == nil {
		t.Error("expected error when locator is a file")
	}
}
