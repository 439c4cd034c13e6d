// Package archive expands uploaded asset bundles into a directory.
//
// The format is sniffed from content, not from the file name: zip, plain tar,
// and tar compressed with gzip, bzip2, xz or zstd are supported.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format is a supported archive container.
type Format string

const (
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarGzip Format = "tar.gz"
	FormatTarBz2  Format = "tar.bz2"
	FormatTarXz   Format = "tar.xz"
	FormatTarZstd Format = "tar.zst"
)

var formatsByMIME = []struct {
	mime   string
	format Format
}{
	{"application/zip", FormatZip},
	{"application/x-tar", FormatTar},
	{"application/gzip", FormatTarGzip},
	{"application/x-bzip2", FormatTarBz2},
	{"application/x-xz", FormatTarXz},
	{"application/zstd", FormatTarZstd},
}

// Detect sniffs the archive format of the file at path.
func Detect(path string) (Format, error) {
	mtype, err := mimetype.DetectFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: sniff %s: %w", domain.ErrIO, path, err)
	}

	// Walk up the MIME tree so zip-based types (jar, apk, docx) resolve to zip.
	for m := mtype; m != nil; m = m.Parent() {
		for _, f := range formatsByMIME {
			if m.Is(f.mime) {
				return f.format, nil
			}
		}
	}
	return "", fmt.Errorf("%w: detected %s", domain.ErrUnsupportedArchive, mtype.String())
}

// Extract expands the archive at src into dst, which must already exist.
func Extract(src, dst string) error {
	format, err := Detect(src)
	if err != nil {
		return err
	}

	if format == FormatZip {
		return extractZip(src, dst)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", domain.ErrIO, src, err)
	}
	defer f.Close()

	r, closeFn, err := decompressor(format, f)
	if err != nil {
		return fmt.Errorf("%w: %s stream: %w", domain.ErrExtraction, format, err)
	}
	defer closeFn()

	return extractTar(r, dst)
}

func decompressor(format Format, r io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch format {
	case FormatTar:
		return r, noop, nil
	case FormatTarGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return gz, func() { _ = gz.Close() }, nil
	case FormatTarBz2:
		return bzip2.NewReader(r), noop, nil
	case FormatTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return xr, noop, nil
	case FormatTarZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return zr, zr.Close, nil
	default:
		return nil, noop, fmt.Errorf("no decompressor for %s", format)
	}
}

func extractZip(src, dst string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("%w: open zip: %w", domain.ErrExtraction, err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		target, err := safeJoin(dst, zf.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		mode := zf.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return entryError("mkdir", target, err)
			}
		case mode.IsRegular():
			if err := writeZipEntry(zf, target); err != nil {
				return err
			}
		default:
			// Symlinks and special files are not carried into the package.
		}
	}
	return nil
}

func writeZipEntry(zf *zip.File, target string) error {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %s: %w", domain.ErrExtraction, zf.Name, err)
	}
	defer rc.Close()
	return writeFile(target, rc, zf.Name)
}

func extractTar(r io.Reader, dst string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read tar: %w", domain.ErrExtraction, err)
		}

		target, err := safeJoin(dst, hdr.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return entryError("mkdir", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.Name); err != nil {
				return err
			}
		default:
			// Links, devices and FIFOs are skipped.
		}
	}
}

func writeFile(target string, r io.Reader, name string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return entryError("mkdir", filepath.Dir(target), err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return entryError("create", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: entry %s: %w", domain.ErrExtraction, name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrIO, target, err)
	}
	return nil
}

// entryError classifies a failure to materialize an entry. Entries that
// collide with each other (a file "a" and a file "a/b") are bad archive
// content; anything else is a local filesystem problem.
func entryError(op, target string, err error) error {
	if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EISDIR) || errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s %s: conflicting entries: %w", domain.ErrExtraction, op, target, err)
	}
	return fmt.Errorf("%w: %s %s: %w", domain.ErrIO, op, target, err)
}

// safeJoin maps an archive entry name under root. It returns "" for entries
// that name root itself and an extraction error for entries escaping root.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(name, `\`, "/")))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %q escapes target directory", domain.ErrExtraction, name)
	}
	if clean == "." {
		return "", nil
	}
	return filepath.Join(root, clean), nil
}
