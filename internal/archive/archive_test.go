package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

var bundle = map[string]string{
	"index.html":     "<html><body>hello</body></html>",
	"js/app.js":      "console.log('hi')",
	"css/site/a.css": "body{}",
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func tarBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func compress(t *testing.T, format Format, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch format {
	case FormatTarGzip:
		w = gzip.NewWriter(&buf)
	case FormatTarZstd:
		w, err = zstd.NewWriter(&buf)
	case FormatTarXz:
		w, err = xz.NewWriter(&buf)
	default:
		t.Fatalf("no compressor for %s", format)
	}
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func listFiles(t *testing.T, root string) map[string]string {
	t.Helper()
	got := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		got[filepath.ToSlash(rel)] = string(body)
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upload.archive")
	writeZip(t, src, bundle)
	dst := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	require.NoError(t, Extract(src, dst))

	assert.Equal(t, bundle, listFiles(t, dst))
}

func TestExtract_TarVariants(t *testing.T) {
	plain := tarBytes(t, bundle)

	tests := []struct {
		format Format
		data   []byte
	}{
		{FormatTar, plain},
		{FormatTarGzip, compress(t, FormatTarGzip, plain)},
		{FormatTarZstd, compress(t, FormatTarZstd, plain)},
		{FormatTarXz, compress(t, FormatTarXz, plain)},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "upload.archive")
			require.NoError(t, os.WriteFile(src, tt.data, 0o644))
			dst := filepath.Join(dir, "out")
			require.NoError(t, os.Mkdir(dst, 0o755))

			format, err := Detect(src)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)

			require.NoError(t, Extract(src, dst))
			assert.Equal(t, bundle, listFiles(t, dst))
		})
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upload.archive")
	require.NoError(t, os.WriteFile(src, []byte("just some text, not an archive"), 0o644))

	err := Extract(src, dir)
	assert.ErrorIs(t, err, domain.ErrUnsupportedArchive)
}

func TestExtract_MissingSource(t *testing.T) {
	err := Extract(filepath.Join(t.TempDir(), "absent"), t.TempDir())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExtract_CorruptZip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upload.archive")
	require.NoError(t, os.WriteFile(src, append([]byte("PK\x03\x04"), bytes.Repeat([]byte{0xAB}, 64)...), 0o644))

	err := Extract(src, dir)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtract_CorruptGzip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upload.archive")
	data := compress(t, FormatTarGzip, tarBytes(t, bundle))
	require.NoError(t, os.WriteFile(src, data[:len(data)/2], 0o644))
	dst := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	err := Extract(src, dst)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "upload.archive")
	writeZip(t, src, map[string]string{"../escaped.txt": "nope"})
	dst := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	err := Extract(src, dst)
	require.ErrorIs(t, err, domain.ErrExtraction)
	assert.NoFileExists(t, filepath.Join(dir, "escaped.txt"))
}

func TestExtract_SkipsSymlinks(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "link", Linkname: "/etc/passwd", Typeflag: tar.TypeSymlink}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "index.html", Mode: 0o644, Size: 2, Typeflag: tar.TypeReg}))
	_, err := tw.Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	dir := t.TempDir()
	src := filepath.Join(dir, "upload.archive")
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o644))
	dst := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))

	require.NoError(t, Extract(src, dst))

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"index.html"}, names)
}

func TestSafeJoin(t *testing.T) {
	root := filepath.FromSlash("/jobs/x/assets")

	got, err := safeJoin(root, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.txt"), got)

	got, err = safeJoin(root, "./")
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"../x", "a/../../x", "/etc/passwd", `..\x`} {
		_, err := safeJoin(root, bad)
		assert.ErrorIs(t, err, domain.ErrExtraction, bad)
	}
}

func TestExtract_ConflictingEntriesAreExtractionErrors(t *testing.T) {
	type entry struct {
		name string
		dir  bool
	}
	tests := []struct {
		name    string
		entries []entry
	}{
		{"file then child", []entry{{name: "a"}, {name: "a/b"}}},
		{"dir then file", []entry{{name: "a/", dir: true}, {name: "a"}}},
		{"file then dir", []entry{{name: "a"}, {name: "a/", dir: true}}},
	}

	for _, tt := range tests {
		t.Run("zip "+tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			for _, e := range tt.entries {
				w, err := zw.Create(e.name)
				require.NoError(t, err)
				if !e.dir {
					_, err = w.Write([]byte("x"))
					require.NoError(t, err)
				}
			}
			require.NoError(t, zw.Close())

			err := extractBytes(t, buf.Bytes())
			require.ErrorIs(t, err, domain.ErrExtraction)
			assert.NotErrorIs(t, err, domain.ErrIO)
		})

		t.Run("tar "+tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tw := tar.NewWriter(&buf)
			for _, e := range tt.entries {
				if e.dir {
					require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0o755, Typeflag: tar.TypeDir}))
					continue
				}
				require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0o644, Size: 1, Typeflag: tar.TypeReg}))
				_, err := tw.Write([]byte("x"))
				require.NoError(t, err)
			}
			require.NoError(t, tw.Close())

			err := extractBytes(t, buf.Bytes())
			require.ErrorIs(t, err, domain.ErrExtraction)
			assert.NotErrorIs(t, err, domain.ErrIO)
		})
	}
}

func TestEntryError_LocalFailuresStayIO(t *testing.T) {
	err := entryError("create", "/jobs/x/assets/a", &os.PathError{Op: "open", Path: "/jobs/x/assets/a", Err: os.ErrPermission})

	assert.ErrorIs(t, err, domain.ErrIO)
	assert.NotErrorIs(t, err, domain.ErrExtraction)
}

func extractBytes(t *testing.T, data []byte) error {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "upload.archive")
	require.NoError(t, os.WriteFile(src, data, 0o644))
	dst := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(dst, 0o755))
	return Extract(src, dst)
}
