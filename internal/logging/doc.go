// Package logging assembles structured slog loggers and formatting helpers used
// across cmdlauncher.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and defines the standard field keys (component, event_type,
// error_hint, impact, correlation_id) so daemon and client log lines share one
// shape. The package also provides a no-op logger for tests and wiring code
// that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup.
package logging
