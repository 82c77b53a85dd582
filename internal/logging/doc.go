// Package logging assembles structured slog loggers and formatting helpers used
// across sloppy services.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so registry and worker code can tag log lines
// with content item IDs, stages, job IDs and correlation IDs. Console output is
// coloured only when it goes straight to a terminal. The package also provides
// a no-op logger for tests and wiring code that cannot fail.
package logging
