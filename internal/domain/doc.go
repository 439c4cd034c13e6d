// Package domain defines the core types and contracts of the APK build pipeline.
//
// Concept-oriented files (job.go, build.go, toolchain.go, errors.go) hold shared types and
// cross-cutting interfaces. Only small value methods live here; behavior belongs to the
// packages that implement the contracts.
package domain
