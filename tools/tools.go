//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run via `go run`/`go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// Air - Live reload while editing templates and handlers
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run:     BACKEND_MODE=mock DEV=true air -- ./cmd/talentgate
//   Docs:    https://github.com/air-verse/air
//
// mockgen - Regenerates internal/mocks from the ports interfaces
//   Run:     go generate ./internal/mocks
//   Version: go.uber.org/mock v0.6.0 (matches go.mod)
