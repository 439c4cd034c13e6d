// Package app provides the application service layer.
//
// Orchestrates the repackaging pipeline: stage the upload, decompile the
// template, patch the decoded tree, compile, sign and place the artifact.
// Depends on domain interfaces and the decoded-tree patchers, not on HTTP.
package app
