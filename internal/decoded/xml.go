package decoded

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/beevik/etree"
)

const xmlDeclaration = `version="1.0" encoding="utf-8"`

// readDocument parses path into an etree document that has a root element.
func readDocument(path string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("%w: read %s: %w", domain.ErrIO, path, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrMalformedDocument, path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s has no root element", domain.ErrMalformedDocument, path)
	}
	return doc, nil
}

// writeDocument serializes doc back to path, keeping an existing XML
// declaration and adding a UTF-8 one if the document had none.
func writeDocument(doc *etree.Document, path string) error {
	ensureDeclaration(doc)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", domain.ErrIO, path, err)
	}
	data, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("%w: serialize %s: %w", domain.ErrIO, path, err)
	}
	if err := os.WriteFile(path, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrIO, path, err)
	}
	return nil
}

func ensureDeclaration(doc *etree.Document) {
	for _, tok := range doc.Child {
		if p, ok := tok.(*etree.ProcInst); ok && p.Target == "xml" {
			return
		}
	}
	decl := doc.CreateProcInst("xml", xmlDeclaration)
	doc.InsertChildAt(0, decl)
	nl := doc.CreateText("\n")
	doc.InsertChildAt(1, nl)
}
