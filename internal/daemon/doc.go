// Package daemon hosts the long-running sloppyd process: it owns the content
// store, the job registry and executor, the notification hub, and the HTTP
// API through which the CLI, observers and remote executors talk to it.
//
// A file lock in the data directory keeps a second daemon from opening the
// same database. Background services (API server, worker pool, staleness
// sweeper) run under one errgroup; the first to fail stops the others.
package daemon
