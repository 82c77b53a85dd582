// Package services defines shared utilities consumed by the job registry,
// the worker pool and the stage collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp content item IDs, stage names, job IDs and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so stage failures carry a
//     consistent classification and operator hint.
//
// Use these helpers when wiring new stage logic so failure handling and
// observability stay uniform across the pipeline.
package services
