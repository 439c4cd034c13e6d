package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialsMerge(t *testing.T) {
	configured := Credentials{Alias: "release", StorePassword: "store", KeyPassword: "key"}

	merged := Credentials{Alias: "override"}.Merge(configured)

	assert.Equal(t, Credentials{Alias: "override", StorePassword: "store", KeyPassword: "key"}, merged)
	assert.True(t, merged.Complete())
}

func TestCredentialsComplete(t *testing.T) {
	assert.False(t, Credentials{}.Complete())
	assert.False(t, Credentials{Alias: "a", StorePassword: "s"}.Complete())
	assert.True(t, Credentials{Alias: "a", StorePassword: "s", KeyPassword: "k"}.Complete())
}

func TestJobLayout(t *testing.T) {
	job := Job{Token: "tok", Dir: filepath.Join("tmp", "tok")}

	assert.Equal(t, filepath.Join("tmp", "tok", "decoded"), job.DecodedDir())
	assert.Equal(t, filepath.Join("tmp", "tok", "signed"), job.SignedDir())
	assert.Equal(t, filepath.Join("tmp", "tok", "unsigned.apk"), job.UnsignedPath())
	assert.Equal(t, filepath.Join("tmp", "tok", "upload.archive"), job.UploadPath())
}

func TestToolError(t *testing.T) {
	cause := fmt.Errorf("%w: exec: not found", ErrToolchainUnavailable)
	err := error(&ToolError{Stage: StageDecode, Err: cause})

	assert.Equal(t, "decode stage failed: toolchain unavailable: exec: not found", err.Error())
	assert.ErrorIs(t, err, ErrToolchainUnavailable)

	exited := &ToolError{Stage: StageSign, ExitCode: 1, Err: errors.New("exit status 1")}
	assert.Equal(t, "sign stage failed with exit code 1: exit status 1", exited.Error())
}
