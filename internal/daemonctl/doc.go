// Package daemonctl starts and stops the sloppyd process on behalf of the CLI.
//
// Readiness and shutdown are observed through the daemon's HTTP status
// endpoint; the process id comes from the status payload, falling back to the
// pid file the daemon writes into its data directory.
package daemonctl
