package domain

import "io"

const (
	DefaultMinSDK    = "21"
	DefaultTargetSDK = "33"

	// APKMediaType is the MIME type of the response payload.
	APKMediaType = "application/vnd.android.package-archive"
	// APKExtension is the extension of every package the pipeline produces.
	APKExtension = ".apk"
)

// Credentials unlock the configured keystore. Empty fields fall back to the
// deployment's configured values.
type Credentials struct {
	Alias         string
	StorePassword string
	KeyPassword   string
}

// Complete reports whether all three credential parts are set.
func (c Credentials) Complete() bool {
	return c.Alias != "" && c.StorePassword != "" && c.KeyPassword != ""
}

// Merge fills empty fields of c from fallback.
func (c Credentials) Merge(fallback Credentials) Credentials {
	if c.Alias == "" {
		c.Alias = fallback.Alias
	}
	if c.StorePassword == "" {
		c.StorePassword = fallback.StorePassword
	}
	if c.KeyPassword == "" {
		c.KeyPassword = fallback.KeyPassword
	}
	return c
}

// BuildRequest carries everything the caller supplies for one job.
type BuildRequest struct {
	AppName   string
	PackageID string
	MinSDK    string
	TargetSDK string

	// Archive is the web asset bundle. It is staged to disk before use.
	Archive io.Reader
	// Icon replaces the launcher icon when non-empty.
	Icon []byte

	Credentials Credentials
}

// Result describes the artifact produced for a job.
type Result struct {
	Job      Job
	FileName string
	Path     string
	// Signed is false when the signer produced nothing and the unsigned
	// package was shipped instead.
	Signed bool
}
