package version

import (
	"runtime"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	// Verify all fields are present
	if info.Version == "" {
		t.Error("Version should not be empty")
	}
	if info.Commit == "" {
		t.Error("Commit should not be empty")
	}
	if info.BuildTime == "" {
		t.Error("BuildTime should not be empty")
	}
	if info.GoVersion == "" {
		t.Error("GoVersion should not be empty")
	}

	// Verify GoVersion matches runtime
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestInfoString_ShortensCommit(t *testing.T) {
	info := Info{Version: "v1.2.0", Commit: "0123456789abcdef", GoVersion: "go1.24.0"}
	if got, want := info.String(), "v1.2.0+0123456 (go1.24.0)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
