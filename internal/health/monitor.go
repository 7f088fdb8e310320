// Package health implements the Health Monitor (spec.md §4.9): it reacts
// to committed state changes, applies standing.Evaluate, and — for T1/T2
// violations — produces an immediate RemoveMember delta with no grace
// period, no warning, no retry. Notification of an ejection (telling the
// group it happened) is the only part of this path that may be delayed,
// and only by an exponential backoff capped at 3600s when the transport
// is unavailable; the ejection itself is never delayed.
package health

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/roder/stroma/internal/standing"
	"github.com/roder/stroma/pkg/models"
)

// NotifyFunc delivers an ejection notice to the group's transport. It may
// fail transiently (network partition, offline peers); Monitor retries it
// with backoff, never blocking the ejection that already happened.
type NotifyFunc func(ctx context.Context, ejected models.MemberHash, reason standing.Verdict) error

// Monitor watches a TrustNetworkState for standing violations and turns
// them into RemoveMember deltas.
type Monitor struct {
	log    *zap.Logger
	notify NotifyFunc
}

// New builds a Monitor. notify may be nil, in which case ejections are
// still computed but never announced — used in tests that only care
// about the ejection decision itself.
func New(log *zap.Logger, notify NotifyFunc) *Monitor {
	return &Monitor{log: log, notify: notify}
}

// Ejection pairs a committed RemoveMember delta with the verdict that
// produced it, so callers can announce the correct reason rather than
// assuming one.
type Ejection struct {
	Delta   models.StateDelta
	Member  models.MemberHash
	Verdict standing.Verdict
}

// Scan evaluates every member of s and returns the RemoveMember deltas
// required to restore the standing invariant. The caller is responsible
// for applying these through internal/trust.ApplyDelta and re-validating;
// Monitor itself never touches a models.TrustNetworkState, consistent
// with spec.md §9's explicit-engine-component design note.
func (m *Monitor) Scan(s *models.TrustNetworkState, stamp func() models.LamportStamp) []models.StateDelta {
	ejections := m.ScanVerdicts(s, stamp)
	deltas := make([]models.StateDelta, 0, len(ejections))
	for _, e := range ejections {
		deltas = append(deltas, e.Delta)
	}
	return deltas
}

// ScanVerdicts is Scan but also reports which verdict (T1 or T2) triggered
// each ejection, so AnnounceEjection can carry the real reason instead of
// a hardcoded one.
func (m *Monitor) ScanVerdicts(s *models.TrustNetworkState, stamp func() models.LamportStamp) []Ejection {
	candidates := standing.EjectionCandidates(s)
	ejections := make([]Ejection, 0, len(candidates))
	for member, verdict := range candidates {
		d := models.RemoveMemberDelta(stamp(), member)
		ejections = append(ejections, Ejection{Delta: d, Member: member, Verdict: verdict})
		if m.log != nil {
			m.log.Info("member ejected", zap.String("member", member.String()), zap.Int("verdict", int(verdict)))
		}
	}
	return ejections
}

// AnnounceEjection delivers the ejection notice for one member with
// exponential backoff capped at 3600s, per spec.md §4.9. Backoff governs
// only the notification retry loop — by the time this function is
// called, the ejection has already been committed.
func (m *Monitor) AnnounceEjection(ctx context.Context, ejected models.MemberHash, reason standing.Verdict) error {
	if m.notify == nil {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	b.MaxInterval = 3600 * time.Second
	bctx := backoff.WithContext(b, ctx)

	return backoff.Retry(func() error {
		err := m.notify(ctx, ejected, reason)
		if err != nil && m.log != nil {
			m.log.Warn("ejection notification failed, retrying", zap.Error(err), zap.String("member", ejected.String()))
		}
		return err
	}, bctx)
}
