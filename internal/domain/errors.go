package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrMalformedDocument    = errors.New("malformed document")
	ErrUnsupportedArchive   = errors.New("unsupported archive")
	ErrExtraction           = errors.New("archive extraction failed")
	ErrIO                   = errors.New("i/o error")
	ErrToolchainUnavailable = errors.New("toolchain unavailable")
	ErrArtifactMismatch     = errors.New("artifact does not match request")
	ErrMissingCredentials   = errors.New("keystore credentials incomplete")
)

// ToolError reports a failed external tool invocation.
type ToolError struct {
	Stage    Stage
	ExitCode int
	// Output is the tail of the tool's combined stdout/stderr.
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s stage failed with exit code %d: %v", e.Stage, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
