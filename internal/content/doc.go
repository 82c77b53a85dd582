// Package content persists content items and their job records in SQLite.
//
// An item moves DRAFTING → DRAFTED → RENDERING → RENDERED → PUBLISHING →
// PUBLISHED. The three -ING states are transient: each holds exactly one
// pending job record and the item's ActiveJobID points at it. The store
// offers the plain Get/List/Put/Delete contract plus transactional helpers
// (InsertWithJob, StartJob, FinishJob) that change an item and its job record
// together, so readers never observe one without the other. A partial unique
// index rejects a second pending job for the same item.
//
// The store never decides transitions itself; the job registry owns that.
package content
