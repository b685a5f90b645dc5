// Package catalog provides the DynamoDB access layer for the tabletop
// reference catalog: document lifecycle operations, composable queries, and
// batched id-set resolution.
//
// Codex keeps every collection (game systems, sources, keywords) in one
// table, partitioned by collection with the record id as sort key, so a
// collection scan is always a single-partition query.
//
// # Gateway
//
// [Gateway] stamps bookkeeping metadata on every write: id, createdAt,
// updatedAt, the isUpdated dirty flag, and a default status of active.
// Reads return nil for absent records rather than an error; backend
// failures propagate unchanged.
//
// # Queries
//
// [BuildQuery] assembles a query from optional filter triples, a sort spec
// (defaulting to createdAt descending), a result cap, and a pagination
// cursor. Invalid filter triples and malformed sort specs are dropped or
// defaulted silently: callers routinely omit optional query parameters.
//
// # Batched resolution
//
// The backend caps IN / NOT IN membership clauses at [MaxMembershipValues]
// operands. [Gateway.ByIDs] chunks larger id sets and queries the chunks
// concurrently; [Gateway.ExcludingIDs] falls back to a scan-and-filter when
// the exclusion set exceeds the cap.
//
// # Service
//
// [Service] is the surface the admin UI consumes: load/get/save/delete with
// an in-flight indicator, an authorization gate on writes, and failure
// surfacing through a [Notifier].
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrUnauthorized] - the actor may not write
//   - [ErrMissingCollection], [ErrMissingID] - required arguments absent
//   - [ErrAlreadyExists] - create hit an existing id
//   - [ErrMembershipTooLarge] - a filter exceeded the membership cap
package catalog
