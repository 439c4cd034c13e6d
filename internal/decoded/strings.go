package decoded

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
)

// AppNameKey is the string resource the launcher shows as the app label.
const AppNameKey = "app_name"

// SetDisplayName sets the app_name string resource in the file at path.
// A missing file is not an error. The first matching top-level <string>
// wins; if none matches a new entry is appended to the root.
func SetDisplayName(path, name string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("%w: stat %s: %w", domain.ErrIO, path, err)
	}

	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	root := doc.Root()
	value := EscapeResourceString(name)

	for _, el := range root.SelectElements("string") {
		if el.SelectAttrValue("name", "") != AppNameKey {
			continue
		}
		// Drop inline markup such as <xliff:g> so the label is exactly value.
		for len(el.Child) > 0 {
			el.RemoveChildAt(0)
		}
		el.SetText(value)
		return writeDocument(doc, path)
	}

	entry := root.CreateElement("string")
	entry.CreateAttr("name", AppNameKey)
	entry.SetText(value)

	return writeDocument(doc, path)
}

// StringsPath returns the default-locale strings resource inside a decoded tree.
func StringsPath(decodedRoot string) string {
	return filepath.Join(decodedRoot, filepath.FromSlash(StringsFile))
}

// EscapeResourceString applies aapt's string escaping so user text compiles verbatim.
func EscapeResourceString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '@', '?':
			if i == 0 {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
