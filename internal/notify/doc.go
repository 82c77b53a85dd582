// Package notify fans job outcomes out to connected observers.
//
// A Hub groups subscribers into channels keyed by job id, plus the fixed
// all-items aggregate channel. Publishing never waits on a slow reader: each
// subscriber owns a bounded queue and the configured overflow policy either
// drops its oldest message or disconnects it. There is no replay; an
// observer that reconnects must rejoin the channels it still cares about.
//
// Server exposes the hub over a websocket with a small JSON protocol:
// observers send join_channel and leave_channel, and receive connection_ack,
// joined, left and job_outcome frames.
package notify
