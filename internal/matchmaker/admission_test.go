package matchmaker

import (
	"testing"

	"github.com/roder/stroma/internal/graph"
	"github.com/roder/stroma/internal/trust"
	"github.com/roder/stroma/pkg/models"
)

func testMember(t *testing.T, seed byte) models.MemberHash {
	t.Helper()
	b := make([]byte, 32)
	b[0] = seed
	h, err := models.MemberHashFromBytes(b)
	if err != nil {
		t.Fatalf("MemberHashFromBytes: %v", err)
	}
	return h
}

func testStamp(tm int64, actor models.MemberHash) models.LamportStamp {
	return models.LamportStamp{LogicalTime: tm, Actor: actor}
}

func mustApplyDelta(t *testing.T, s *models.TrustNetworkState, d models.StateDelta) *models.TrustNetworkState {
	t.Helper()
	out, err := trust.ApplyDelta(s, d)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	return out
}

// S2: Admission across a bridge. Two tightly mutually-vouching clusters
// {A,B,C} and {D,E,F} connected only by a bridge member X who vouches into
// both. An inviter from the first cluster must get an assessor from
// outside its own cluster.
func buildBridgedState(t *testing.T) *models.TrustNetworkState {
	t.Helper()
	a, b, c := testMember(t, 1), testMember(t, 2), testMember(t, 3)
	d, e, f := testMember(t, 4), testMember(t, 5), testMember(t, 6)
	x := testMember(t, 7)
	// g is an unconnected fourth component, keeping the bridge-split
	// component count at the bootstrap threshold (4) so this state's two
	// triangles stay distinct clusters instead of collapsing into one —
	// the collapse case has its own dedicated tests below.
	g := testMember(t, 8)

	s := models.NewTrustNetworkState("G")
	n := int64(0)
	addMember := func(m models.MemberHash) {
		n++
		s = mustApplyDelta(t, s, models.AddMemberDelta(testStamp(n, m), m))
	}
	addVouch := func(from, to models.MemberHash) {
		n++
		s = mustApplyDelta(t, s, models.AddVouchDelta(testStamp(n, from), from, to))
	}

	for _, m := range []models.MemberHash{a, b, c, d, e, f, x, g} {
		addMember(m)
	}
	for _, pair := range [][2]models.MemberHash{{a, b}, {b, a}, {a, c}, {c, a}, {b, c}, {c, b}} {
		addVouch(pair[0], pair[1])
	}
	for _, pair := range [][2]models.MemberHash{{d, e}, {e, d}, {d, f}, {f, d}, {e, f}, {f, e}} {
		addVouch(pair[0], pair[1])
	}
	// x bridges both clusters without joining either one's mutual core.
	addVouch(a, x)
	addVouch(x, a)
	addVouch(d, x)
	addVouch(x, d)

	return s
}

func TestScenarioS2AssessorSelectionAcrossBridge(t *testing.T) {
	s := buildBridgedState(t)
	a := testMember(t, 1)
	cr := graph.Analyze(s)
	if cr.BootstrapCollapse {
		t.Fatalf("expected two distinct bridge-separated clusters, got a bootstrap collapse")
	}

	inviterCluster := cr.ClusterOf[a]
	outcome := SelectAssessor(s, cr, a, nil)
	if outcome.Stalled {
		t.Fatalf("expected an eligible assessor across the bridge, got Stalled")
	}
	if cr.ClusterOf[outcome.Assessor] == inviterCluster {
		t.Fatalf("assessor %s shares inviter's cluster %s", outcome.Assessor, inviterCluster)
	}
}

// A 3-member network always collapses to one bootstrap cluster; spec.md
// §4.8 step 2's "unless |clusters| = 1" exception means select_assessor
// must still find an assessor here instead of stalling.
func TestSelectAssessorBootstrapFallbackAvoidsStall(t *testing.T) {
	a, b, c := testMember(t, 1), testMember(t, 2), testMember(t, 3)
	s := models.NewTrustNetworkState("G")
	s = mustApplyDelta(t, s, models.AddMemberDelta(testStamp(1, a), a))
	s = mustApplyDelta(t, s, models.AddMemberDelta(testStamp(2, a), b))
	s = mustApplyDelta(t, s, models.AddMemberDelta(testStamp(3, a), c))
	for _, pair := range [][2]models.MemberHash{{a, b}, {b, a}, {a, c}, {c, a}, {b, c}, {c, b}} {
		s = mustApplyDelta(t, s, models.AddVouchDelta(testStamp(10, a), pair[0], pair[1]))
	}

	cr := graph.Analyze(s)
	if !cr.BootstrapCollapse {
		t.Fatalf("expected a 3-member triangle to collapse to one bootstrap cluster")
	}
	outcome := SelectAssessor(s, cr, a, nil)
	if outcome.Stalled {
		t.Fatalf("expected the bootstrap fallback to find an assessor, got Stalled")
	}
	if outcome.Assessor == a {
		t.Fatalf("assessor must not be the inviter")
	}
}

func TestSelectAssessorStallsWhenAllEligibleExcluded(t *testing.T) {
	a, b := testMember(t, 1), testMember(t, 2)
	s := models.NewTrustNetworkState("G")
	s = mustApplyDelta(t, s, models.AddMemberDelta(testStamp(1, a), a))
	s = mustApplyDelta(t, s, models.AddMemberDelta(testStamp(2, a), b))
	s = mustApplyDelta(t, s, models.AddVouchDelta(testStamp(3, a), a, b))
	s = mustApplyDelta(t, s, models.AddVouchDelta(testStamp(4, b), b, a))

	cr := graph.Analyze(s)
	excluded := models.NewMemberSet(b)
	outcome := SelectAssessor(s, cr, a, excluded)
	if !outcome.Stalled {
		t.Fatalf("expected Stalled when the only other member is excluded, got assessor %s", outcome.Assessor)
	}
}

func TestDVRTierPrefersIndependentVouchers(t *testing.T) {
	s := buildBridgedState(t)
	a := testMember(t, 1)
	d := testMember(t, 4)
	x := testMember(t, 7)

	// d's vouchers (e,f,x) barely overlap a's vouchers (b,c,x): only x is
	// shared, so d should land above low tier.
	tier := dvrTier(s, a, d)
	if tier == DVRTierLow {
		t.Fatalf("expected d's mostly-independent voucher set to score above DVRTierLow")
	}
}
