package decoded

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/SYSCYCLE/apk-builder/internal/archive"
	"github.com/SYSCYCLE/apk-builder/internal/domain"
)

const (
	assetsDir    = "assets"
	webAssetsDir = "assets/www"
)

// AssetsTarget resolves the directory that receives the web bundle:
// assets/www if present, else assets if present, else assets/www (to be created).
func AssetsTarget(decodedRoot string) string {
	primary := filepath.Join(decodedRoot, filepath.FromSlash(webAssetsDir))
	if isDir(primary) {
		return primary
	}
	if parent := filepath.Join(decodedRoot, assetsDir); isDir(parent) {
		return parent
	}
	return primary
}

// ReplaceAssets empties the resolved assets directory and expands the archive
// at archivePath into it. It returns the directory it wrote to.
func ReplaceAssets(ctx context.Context, decodedRoot, archivePath string) (string, error) {
	target := AssetsTarget(decodedRoot)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", domain.ErrIO, target, err)
	}

	ClearDir(ctx, target)

	if err := archive.Extract(archivePath, target); err != nil {
		return "", err
	}
	return target, nil
}

// ClearDir removes every direct child of dir. Entries that cannot be removed
// are logged and skipped.
func ClearDir(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.WarnContext(ctx, "Failed to list directory for clearing", "dir", dir, "error", err)
		return
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.WarnContext(ctx, "Failed to remove stale asset", "path", path, "error", err)
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
