package decoded

import "path/filepath"

const packageAttr = "package"

// SetPackageID rewrites the root element's package attribute of the manifest
// at path. Every other attribute and node is left as parsed.
func SetPackageID(path, packageID string) error {
	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	root := doc.Root()
	if root.SelectAttrValue(packageAttr, "") == packageID {
		return nil
	}
	root.CreateAttr(packageAttr, packageID)

	return writeDocument(doc, path)
}

// ManifestPath returns the manifest location inside a decoded tree.
func ManifestPath(decodedRoot string) string {
	return filepath.Join(decodedRoot, ManifestFile)
}
