// Package replication implements the four-state replication health
// machine (spec.md §4.15): Provisional, Active, Degraded and Isolated.
// Gate refuses writes in Degraded and in Isolated, and lets them through
// in Provisional (no holders expected yet) and Active (healthy). Isolated
// means no expected holder has a fresh attestation — a state from which
// only re-establishing contact with a holder can recover.
package replication

import "github.com/roder/stroma/pkg/models"

// Thresholds configures when the health machine transitions between
// states, expressed as a fraction of a chunk's expected holder count
// (rendezvous.DefaultTopK + rendezvous.LocalCopies) currently confirmed
// healthy via a fresh attestation.
type Thresholds struct {
	// ActiveMinFraction is the minimum confirmed-holder fraction required
	// to be, or remain, Active.
	ActiveMinFraction float64
	// DegradedMinFraction is the floor below which the state drops all
	// the way to Isolated instead of merely Degraded.
	DegradedMinFraction float64
}

// DefaultThresholds matches spec.md §4.15's reference values.
func DefaultThresholds() Thresholds {
	return Thresholds{ActiveMinFraction: 0.67, DegradedMinFraction: 0.01}
}

// Evaluate computes the replication state for a chunk given how many of
// its expected holders have a currently-fresh attestation.
func Evaluate(t Thresholds, expectedHolders, freshHolders int) models.ReplicationState {
	if expectedHolders == 0 {
		return models.ReplicationProvisional
	}
	fraction := float64(freshHolders) / float64(expectedHolders)
	switch {
	case freshHolders == 0:
		return models.ReplicationIsolated
	case fraction >= t.ActiveMinFraction:
		return models.ReplicationActive
	case fraction >= t.DegradedMinFraction:
		return models.ReplicationDegraded
	default:
		return models.ReplicationIsolated
	}
}

// Gate reports whether a write to a chunk in the given state should
// proceed. Isolated still gates writes in practice (there is no holder to
// write to), but the caller is expected to treat that as a distinct
// UnrecoverableChunk condition rather than a ChunkVerificationFailed one —
// BlocksWrites alone only distinguishes the Degraded case spec.md calls
// out explicitly.
func Gate(state models.ReplicationState) (allowed bool) {
	return !state.BlocksWrites() && state != models.ReplicationIsolated
}
