// Package logging provides a minimal logging interface and adapters for agentrelay.
//
// The Logger interface defines the leveled, key/value logging methods (Debug,
// Info, Warn, Error) that the runner, guardrails and workflow helpers use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping a *zap.Logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.Config{Level: logging.LogLevelDebug, Format: "text"})
//	r := runner.New(backend, func(o *runner.Options) { o.Logger = logger })
//
// The interface is intentionally small so callers can bring any structured
// logger without the core depending on it.
package logging
