//go:build tools
// +build tools

// Package tools declares tool dependencies for this module.
//
// These imports are not used at runtime. They keep mockgen, which
// go generate runs for the signaling mocks, pinned in go.mod.
package videochat

import (
	_ "go.uber.org/mock/mockgen"
)
