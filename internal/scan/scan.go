// Package scan counts the displayable items behind a target locator.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/attune/internal/models"
)

// Counter reports how many items a locator resolves to.
type Counter interface {
	Count(ctx context.Context, source models.SourceType, locator string) (int, error)
}

// imageExts are the file extensions treated as displayable items.
var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".heic": true,
}

// IsItem reports whether name has a displayable extension.
func IsItem(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// DirCounter counts image files under directory locators. URL locators are
// resolved by the display side and always count as zero here.
type DirCounter struct{}

// Count implements Counter.
func (DirCounter) Count(ctx context.Context, source models.SourceType, locator string) (int, error) {
	switch source {
	case models.SourceURL:
		return 0, nil
	case models.SourceDirectory:
		items, err := ListItems(ctx, locator)
		return len(items), err
	default:
		return 0, fmt.Errorf("scan: unknown source type %q", source)
	}
}

// ListItems returns the sorted absolute paths of every displayable file under
// root, skipping hidden files and directories.
func ListItems(ctx context.Context, root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scan: resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("scan: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan: not a directory: %s", root)
	}

	var out []string
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != abs && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsItem(d.Name()) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan: walk %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}
