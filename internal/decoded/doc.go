// Package decoded edits the tree that apktool produces when it decompiles the
// template package: the manifest's package attribute, the app_name string
// resource, apktool.yml build metadata, the launcher icon and the web assets.
//
// Layout conventions of the tree are fixed and are not validated up front;
// each editor decides on its own whether a missing file is fatal.
package decoded

// Relative paths inside a decoded tree.
const (
	ManifestFile = "AndroidManifest.xml"
	MetadataFile = "apktool.yml"
	StringsFile  = "res/values/strings.xml"
)
