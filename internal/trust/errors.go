package trust

import "github.com/pkg/errors"

// Error taxonomy per spec.md §7. Callers should use errors.Is against
// these sentinels; internal/trust always wraps them with errors.Wrap so a
// stack trace survives to the top-level handler.
var (
	// ErrInvalidUpdate: delta is structurally or semantically malformed
	// (references a nonexistent actor, negative count, etc). Rejected,
	// never applied, no state change.
	ErrInvalidUpdate = errors.New("trust: invalid update")

	// ErrInvalidState: resulting state would violate an invariant.
	// Rejected before commit; the candidate is discarded.
	ErrInvalidState = errors.New("trust: invalid resulting state")

	// ErrFatalInvariant: an invariant is violated in state that was
	// already committed — a bug, not a bad delta. Callers should halt the
	// affected group rather than attempt to keep serving it.
	ErrFatalInvariant = errors.New("trust: fatal invariant violation")
)
