// Package preflight runs environment checks for sloppyd: directory
// permissions, stage collaborator binaries for the local executor, and remote
// executor reachability.
//
// `sloppy config validate` prints the results and the daemon logs the binary
// checks at startup. Checks are advisory; none of them blocks the daemon.
package preflight
