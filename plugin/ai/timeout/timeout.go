// Package timeout defines centralized timeout constants for model operations.
package timeout

import "time"

const (
	// EmbeddingTimeout bounds a single embedding request.
	EmbeddingTimeout = 30 * time.Second

	// StartupTimeout bounds model start-up: loading the checkpoint and
	// embedding every known training text.
	StartupTimeout = 5 * time.Minute
)
