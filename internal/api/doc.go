// Package api defines the HTTP wire types shared by the daemon and its
// clients, converters from the content models, and a resty-based client.
//
// # Key Types
//
// ContentItem: transport representation of a content item including its
// per-stage cost breakdown and in-flight job id.
//
// JobRecord: a job submitted for an item and how it ended.
//
// StatusResponse: item counts per state, pending jobs, pool depth and
// notification hub usage.
//
// OutcomeRequest: the payload an executor posts when a job ends.
//
// # Design Notes
//
// Observer-facing DTOs use camelCase JSON tags. Executor payloads (the job
// handed to a remote executor and the outcome it posts back) use snake_case
// to match the job JSON that command collaborators read on stdin.
// Timestamps are RFC3339 with milliseconds.
package api
