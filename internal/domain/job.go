package domain

import "path/filepath"

// Job is one end-to-end request to produce a signed package. It owns Dir for
// its whole lifetime; everything under Dir is disposable once the response is sent.
type Job struct {
	Token string
	Dir   string
}

// Fixed layout of a job directory.
const (
	decodedDirName   = "decoded"
	signedDirName    = "signed"
	uploadFileName   = "upload.archive"
	unsignedFileName = "unsigned.apk"
)

// DecodedDir is where the decompiler writes the editable tree.
func (j Job) DecodedDir() string { return filepath.Join(j.Dir, decodedDirName) }

// UploadPath is where the caller's asset archive is staged.
func (j Job) UploadPath() string { return filepath.Join(j.Dir, uploadFileName) }

// UnsignedPath is the compiler's output.
func (j Job) UnsignedPath() string { return filepath.Join(j.Dir, unsignedFileName) }

// SignedDir is the job-scoped directory the signer writes into.
func (j Job) SignedDir() string { return filepath.Join(j.Dir, signedDirName) }
