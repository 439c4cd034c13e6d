package decoded

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
)

// IconCandidates are the launcher icon locations tried in order.
var IconCandidates = []string{
	"res/mipmap-xxxhdpi/ic_launcher.png",
	"res/mipmap-xxhdpi/ic_launcher.png",
}

// ReplaceIcon overwrites the first candidate icon whose density directory
// exists and returns its path. It returns "" when no candidate directory
// exists; the template's own icon is kept in that case.
func ReplaceIcon(decodedRoot string, icon []byte) (string, error) {
	for _, rel := range IconCandidates {
		path := filepath.Join(decodedRoot, filepath.FromSlash(rel))

		info, err := os.Stat(filepath.Dir(path))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: stat %s: %w", domain.ErrIO, filepath.Dir(path), err)
		}
		if !info.IsDir() {
			continue
		}

		if err := os.WriteFile(path, icon, 0o644); err != nil {
			return "", fmt.Errorf("%w: write icon: %w", domain.ErrIO, err)
		}
		return path, nil
	}
	return "", nil
}
