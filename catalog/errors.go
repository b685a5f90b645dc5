package catalog

import "errors"

var (
	// ErrUnauthorized is returned before any network call when the actor is
	// not authenticated or has no email.
	ErrUnauthorized = errors.New("codex: unauthorized modifying")

	// ErrMissingCollection is returned when an operation is called without a
	// collection ref.
	ErrMissingCollection = errors.New("codex: collection ref is required")

	// ErrMissingID is returned when an operation requiring an id is called
	// without one.
	ErrMissingID = errors.New("codex: record id is required")

	// ErrAlreadyExists is returned when creating a record with an id that is
	// already taken in the collection.
	ErrAlreadyExists = errors.New("codex: record already exists")

	// ErrMembershipTooLarge is returned when a filter asks for an IN or
	// NOT IN clause with more than MaxMembershipValues operands; use the
	// resolver for larger sets.
	ErrMembershipTooLarge = errors.New("codex: membership clause exceeds backend operand cap")
)
