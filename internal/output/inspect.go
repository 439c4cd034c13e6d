package output

import (
	"fmt"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/shogo82148/androidbinary/apk"
)

// APKInspector reads the binary manifest of a built package.
type APKInspector struct{}

var _ domain.ArtifactInspector = APKInspector{}

func (APKInspector) PackageName(path string) (string, error) {
	pkg, err := apk.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open package: %w", err)
	}
	defer pkg.Close()

	name := pkg.PackageName()
	if name == "" {
		return "", fmt.Errorf("package %s declares no package name", path)
	}
	return name, nil
}
