package decoded

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZipArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.archive")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func tree(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	require.NoError(t, filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	}))
	sort.Strings(paths)
	return paths
}

func TestReplaceAssets_LeavesOnlyArchiveContents(t *testing.T) {
	root := t.TempDir()
	www := filepath.Join(root, "assets", "www")
	mkdirs(t, root, "assets/www/old/nested")
	require.NoError(t, os.WriteFile(filepath.Join(www, "stale.html"), []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(www, "old", "nested", "deep.js"), []byte("old"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(www, "stale.html"), filepath.Join(www, "link.html")))

	archive := writeZipArchive(t, map[string]string{
		"index.html": "<h1>new</h1>",
		"js/app.js":  "run()",
	})

	target, err := ReplaceAssets(context.Background(), root, archive)
	require.NoError(t, err)

	assert.Equal(t, www, target)
	assert.Equal(t, []string{"index.html", "js", "js/app.js"}, tree(t, www))
}

func TestReplaceAssets_FallsBackToAssetsDir(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "assets")
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "old.txt"), []byte("x"), 0o644))

	target, err := ReplaceAssets(context.Background(), root, writeZipArchive(t, map[string]string{"index.html": "hi"}))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "assets"), target)
	assert.Equal(t, []string{"index.html"}, tree(t, target))
}

func TestReplaceAssets_CreatesTargetWhenMissing(t *testing.T) {
	root := t.TempDir()

	target, err := ReplaceAssets(context.Background(), root, writeZipArchive(t, map[string]string{"index.html": "hi"}))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "assets", "www"), target)
	assert.FileExists(t, filepath.Join(target, "index.html"))
}

func TestReplaceAssets_UnsupportedArchive(t *testing.T) {
	root := t.TempDir()
	bogus := filepath.Join(t.TempDir(), "upload.archive")
	require.NoError(t, os.WriteFile(bogus, []byte("plain text upload"), 0o644))

	_, err := ReplaceAssets(context.Background(), root, bogus)
	assert.ErrorIs(t, err, domain.ErrUnsupportedArchive)
}

func TestClearDir_MissingDirIsSilent(t *testing.T) {
	assert.NotPanics(t, func() {
		ClearDir(context.Background(), filepath.Join(t.TempDir(), "absent"))
	})
}
