// Package workflow turns user actions into registry operations and watches
// for items whose job never reports back.
//
// Manager is the orchestrator: create, render, publish, retry, rollback and
// delete all go through it, as do outcome reports arriving over HTTP. Its
// Run loop periodically sweeps for transient items that have not changed in
// jobs.stale_after_seconds; these are logged and, when
// jobs.auto_rollback_stale is set, failed back to their last stable state.
package workflow
