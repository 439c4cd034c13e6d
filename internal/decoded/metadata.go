package decoded

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"gopkg.in/yaml.v3"
)

// BuildInfo holds the apktool.yml fields the pipeline controls.
type BuildInfo struct {
	// RenamePackage makes aapt rename the binary manifest package on build.
	RenamePackage string
	MinSDK        string
	TargetSDK     string
}

// MetadataPath returns the apktool.yml location inside a decoded tree.
func MetadataPath(decodedRoot string) string {
	return filepath.Join(decodedRoot, MetadataFile)
}

// SetBuildInfo updates apktool.yml in place. Empty BuildInfo fields are left
// untouched. A missing file is not an error: older apktool releases do not
// always emit one and the build then falls back to the manifest alone.
func SetBuildInfo(path string, info BuildInfo) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", domain.ErrIO, path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrMalformedDocument, path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%w: %s is not a mapping", domain.ErrMalformedDocument, path)
	}
	root := doc.Content[0]

	if info.RenamePackage != "" {
		setScalar(mappingChild(root, "packageInfo"), "renameManifestPackage", info.RenamePackage)
	}
	if info.MinSDK != "" || info.TargetSDK != "" {
		sdk := mappingChild(root, "sdkInfo")
		if info.MinSDK != "" {
			setScalar(sdk, "minSdkVersion", info.MinSDK)
		}
		if info.TargetSDK != "" {
			setScalar(sdk, "targetSdkVersion", info.TargetSDK)
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("%w: encode %s: %w", domain.ErrIO, path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w: encode %s: %w", domain.ErrIO, path, err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrIO, path, err)
	}
	return nil
}

// mappingChild returns the mapping stored under key, replacing a null or
// scalar value and appending the key when absent.
func mappingChild(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key {
			continue
		}
		val := m.Content[i+1]
		if val.Kind != yaml.MappingNode {
			*val = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		return val
	}

	val := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		val,
	)
	return val
}

// setScalar stores value under key as a single-quoted string, the style apktool writes.
func setScalar(m *yaml.Node, key, value string) {
	scalar := yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.SingleQuotedStyle, Value: value}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			*m.Content[i+1] = scalar
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&scalar,
	)
}
