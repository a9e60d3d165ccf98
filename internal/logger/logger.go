// Package logger provides the process-wide structured logger used by every
// component of the pipeline. It wraps hashicorp/go-hclog the same way the
// teacher wraps its logging: a package-level default that individual
// packages `.Named(...)` off of, plus the ability to install a different
// root logger (tests, alternate sinks) before anything else starts.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	root hclog.Logger = hclog.New(&hclog.LoggerOptions{
		Name:       "mediapipe",
		Level:      hclog.Info,
		Output:     os.Stderr,
		JSONFormat: os.Getenv("LOG_FORMAT") == "json",
	})
)

// SetGlobal replaces the process-wide root logger.
func SetGlobal(l hclog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
}

// Global returns the process-wide root logger.
func Global() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a child logger scoped to the given component name, the
// idiom used throughout the pipeline: logger.Named("boxwriter").
func Named(name string) hclog.Logger {
	return Global().Named(name)
}
