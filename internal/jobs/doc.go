// Package jobs tracks the stage jobs that move content items through their
// lifecycle.
//
// The Registry is the only writer of item state. It submits work to a Queue
// (the local worker Pool or a RemoteQueue), records the pending job, and
// applies each Outcome as a transition that is then announced to observers.
package jobs
