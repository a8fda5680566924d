// Package testutil provides shared test helpers for registries and targets.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/registry"
	"github.com/starford/attune/internal/scan"
)

// TestRegistry creates a registry backed by a JSON snapshot in a temp dir.
func TestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	store, err := registry.NewFileStore(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatal(err)
	}
	reg, err := registry.Open(context.Background(), store, scan.DirCounter{})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

// TestSQLiteRegistry creates a registry backed by a temporary SQLite database
// that is closed on cleanup.
func TestSQLiteRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	store, err := registry.OpenSQLite(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	reg, err := registry.Open(context.Background(), store, scan.DirCounter{})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

// SeedTargets registers n URL targets named target-0..target-n-1 with a 1ms
// display interval.
func SeedTargets(t *testing.T, reg *registry.Registry, n int) []models.Target {
	t.Helper()
	out := make([]models.Target, 0, n)
	for i := 0; i < n; i++ {
		tg, err := reg.Create(context.Background(), models.TargetInput{
			Name:              fmt.Sprintf("target-%d", i),
			Locator:           fmt.Sprintf("https://example.com/target-%d", i),
			DisplayDurationMs: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, tg)
	}
	return out
}

// Eventually polls fn every tick until it returns true or timeout expires.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
