package domain

import "context"

// Stage identifies one external tool invocation.
type Stage string

const (
	StageDecode Stage = "decode"
	StageBuild  Stage = "build"
	StageSign   Stage = "sign"
)

// Toolchain wraps the decompiler/compiler pair and the signer.
type Toolchain interface {
	Decompile(ctx context.Context, templatePath, outputDir string) error
	Compile(ctx context.Context, decodedDir, unsignedPath string) error
	Sign(ctx context.Context, unsignedPath, outputDir string, creds Credentials) error
	// KeystorePresent reports whether signing will use the configured keystore.
	KeystorePresent() bool
}

// ArtifactInspector reads metadata out of a built package.
type ArtifactInspector interface {
	PackageName(path string) (string, error)
}
