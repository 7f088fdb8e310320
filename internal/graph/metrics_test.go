package graph

import (
	"testing"

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

func buildResult(t *testing.T, assignment map[byte]ClusterID) *ClusterResult {
	t.Helper()
	r := &ClusterResult{ClusterOf: map[models.MemberHash]ClusterID{}, Members: map[ClusterID][]models.MemberHash{}}
	for seed, cid := range assignment {
		m := testMember(t, seed)
		r.ClusterOf[m] = cid
		r.Members[cid] = append(r.Members[cid], m)
	}
	return r
}

func TestClusterStabilityIdenticalPartitionsIsPerfect(t *testing.T) {
	a := buildResult(t, map[byte]ClusterID{1: "c1", 2: "c1", 3: "c2", 4: "c2"})
	ari, vi := ClusterStability(a, a)
	if ari != 1.0 {
		t.Fatalf("expected ARI 1.0 for identical partitions, got %v", ari)
	}
	if vi != 0.0 {
		t.Fatalf("expected VI 0.0 for identical partitions, got %v", vi)
	}
}

func TestClusterStabilityDetectsSplit(t *testing.T) {
	prev := buildResult(t, map[byte]ClusterID{1: "c1", 2: "c1", 3: "c1", 4: "c1"})
	next := buildResult(t, map[byte]ClusterID{1: "c1", 2: "c1", 3: "c2", 4: "c2"})
	ari, vi := ClusterStability(prev, next)
	if ari >= 1.0 {
		t.Fatalf("expected ARI < 1.0 once a cluster splits, got %v", ari)
	}
	if vi <= 0.0 {
		t.Fatalf("expected VI > 0.0 once a cluster splits, got %v", vi)
	}
}

func TestClusterStabilityFewerThanTwoCommonMembersIsStable(t *testing.T) {
	prev := buildResult(t, map[byte]ClusterID{1: "c1"})
	next := buildResult(t, map[byte]ClusterID{1: "c1"})
	ari, vi := ClusterStability(prev, next)
	if ari != 1.0 || vi != 0.0 {
		t.Fatalf("expected trivially stable result for <2 common members, got ari=%v vi=%v", ari, vi)
	}
}
