// Package output turns whatever the signer left behind into the caller-facing
// artifact in the shared output directory.
package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/otiai10/copy"
)

// Resolver places signed packages at their deterministic names.
type Resolver struct {
	allowUnsigned bool
}

func NewResolver(allowUnsigned bool) *Resolver {
	return &Resolver{allowUnsigned: allowUnsigned}
}

// Resolve finds the signer's artifact in signedDir and moves it to desiredPath.
//
// The signer names its output after its own conventions (for example
// unsigned-aligned-debugSigned.apk), so signedDir is scanned in name order for
// the first package whose name does not carry jobToken; a name that does is an
// already-placed artifact. When nothing is found and unsigned fallback is
// allowed, unsignedPath is copied to desiredPath and signed is false.
func (r *Resolver) Resolve(ctx context.Context, signedDir, jobToken, desiredPath, unsignedPath string) (signed bool, err error) {
	candidate, err := findArtifact(signedDir, jobToken)
	if err != nil {
		return false, err
	}

	if candidate != "" {
		if err := move(candidate, desiredPath); err != nil {
			return false, err
		}
		slog.DebugContext(ctx, "Placed signed package", "from", candidate, "to", desiredPath)
		return true, nil
	}

	if !r.allowUnsigned {
		return false, fmt.Errorf("%w: signer produced no package in %s", domain.ErrNotFound, signedDir)
	}
	if _, err := os.Stat(unsignedPath); err != nil {
		return false, fmt.Errorf("%w: no signed or unsigned package for job", domain.ErrNotFound)
	}

	if err := copy.Copy(unsignedPath, desiredPath); err != nil {
		return false, fmt.Errorf("%w: copy unsigned package: %w", domain.ErrIO, err)
	}
	slog.WarnContext(ctx, "Signer produced no package, shipping unsigned build", "path", desiredPath)
	return false, nil
}

func findArtifact(dir, jobToken string) (string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", domain.ErrIO, dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, domain.APKExtension) {
			continue
		}
		if jobToken != "" && strings.Contains(name, jobToken) {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", nil
}

// rename is swapped in tests to simulate cross-device moves.
var rename = os.Rename

// move renames src to dst, copying only when they are on different
// filesystems. Any other rename failure is returned as is.
func move(src, dst string) error {
	err := rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("%w: move package: %w", domain.ErrIO, err)
	}

	if err := copy.Copy(src, dst); err != nil {
		return fmt.Errorf("%w: copy package across devices: %w", domain.ErrIO, err)
	}
	_ = os.Remove(src)
	return nil
}
