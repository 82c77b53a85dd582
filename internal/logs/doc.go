// Package logs reads the daemon log file for `sloppy logs`.
//
// Tail returns the last N lines together with the byte offset reached, and
// Follow streams lines appended after an offset until the context ends. Reads
// use a bounded line buffer so very long log files never load into memory.
package logs
