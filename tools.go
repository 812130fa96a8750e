//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// These imports are not used at runtime. They keep the tools invoked through
// `go generate` (mockgen) pinned in go.mod / go.sum.
package talkstream

import (
	_ "go.uber.org/mock/mockgen"
)
