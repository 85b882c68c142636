//go:build tools

// Package tools pins code generators so `go generate ./...` resolves them from go.mod.
package tools

import (
	// mockgen renders internal/mocks from the storage ports in internal/core.
	_ "go.uber.org/mock/mockgen"
)
