package matchmaker

import (
	"sort"

	"github.com/roder/stroma/internal/graph"
	"github.com/roder/stroma/pkg/models"
)

// Introduction is one suggested vouch-building pairing between two
// members.
type Introduction struct {
	A, B models.MemberHash
	// Reason records which phase produced the suggestion, for display.
	Reason IntroductionReason
}

// IntroductionReason names the mesh-building phase that produced an
// Introduction, per spec.md §4.7.
type IntroductionReason int

const (
	// ReasonDVROptimal: both members sit in the same cluster and neither
	// vouches for the other.
	ReasonDVROptimal IntroductionReason = iota
	// ReasonMSTFallback: the pairing is one edge of a minimum spanning
	// tree connecting every cluster, used when no DVR-optimal pairing is
	// available within a cluster.
	ReasonMSTFallback
	// ReasonClusterBridging: the pairing crosses two clusters that the
	// network would benefit from bridging beyond the MST's bare minimum.
	ReasonClusterBridging
)

func (r IntroductionReason) String() string {
	switch r {
	case ReasonDVROptimal:
		return "dvr_optimal"
	case ReasonMSTFallback:
		return "mst_fallback"
	case ReasonClusterBridging:
		return "cluster_bridging"
	default:
		return "unknown"
	}
}

// SuggestIntroductions runs the three-phase mesh-building algorithm of
// spec.md §4.7 and returns up to limit suggested pairings.
//
//   - Phase 0 (DVR-optimal): within each cluster, pair every two members
//     of whom neither vouches for the other, in the cluster's centrality
//     order. No DVR or voucher-overlap score is computed for a pair.
//   - Phase 1 (MST fallback): if Phase 0 leaves room under limit, connect
//     clusters to each other via a spanning tree over the clusters'
//     highest-centrality members, so every cluster gains at least one
//     cross-cluster link.
//   - Phase 2 (cluster bridging): if room still remains, pair the
//     second-highest-centrality members of every two clusters that have
//     at least two members each, whether or not those clusters are
//     already connected.
//
// Phases 1 and 2 do not check whether the paired members already vouch
// for each other.
func SuggestIntroductions(s *models.TrustNetworkState, cr *graph.ClusterResult, limit int) []Introduction {
	var out []Introduction

	out = append(out, phase0DVROptimal(s, cr, limit-len(out))...)
	if len(out) >= limit {
		return out[:limit]
	}
	out = append(out, phase1MST(s, cr, limit-len(out))...)
	if len(out) >= limit {
		return out[:limit]
	}
	out = append(out, phase2ClusterBridging(s, cr, limit-len(out))...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func phase0DVROptimal(s *models.TrustNetworkState, cr *graph.ClusterResult, limit int) []Introduction {
	if limit <= 0 {
		return nil
	}
	var out []Introduction
	for _, members := range cr.Members {
		for i := 0; i < len(members) && len(out) < limit; i++ {
			for j := i + 1; j < len(members) && len(out) < limit; j++ {
				a, b := members[i], members[j]
				if s.Vouches.Has(a, b) || s.Vouches.Has(b, a) {
					continue
				}
				out = append(out, Introduction{A: a, B: b, Reason: ReasonDVROptimal})
			}
		}
	}
	return out
}

func phase1MST(s *models.TrustNetworkState, cr *graph.ClusterResult, limit int) []Introduction {
	if limit <= 0 || len(cr.Members) < 2 {
		return nil
	}
	clusterIDs := make([]graph.ClusterID, 0, len(cr.Members))
	for id := range cr.Members {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Slice(clusterIDs, func(i, j int) bool { return clusterIDs[i] < clusterIDs[j] })

	// Kruskal's algorithm over the complete graph of cluster
	// representatives (each cluster's highest-centrality member, already
	// first in cr.Members[id]): every candidate edge has equal weight, so
	// sorting by (clusterA, clusterB) gives a deterministic MST.
	uf := newClusterUnionFind(clusterIDs)
	var out []Introduction
	for i := 0; i < len(clusterIDs) && len(out) < limit; i++ {
		for j := i + 1; j < len(clusterIDs) && len(out) < limit; j++ {
			ci, cj := clusterIDs[i], clusterIDs[j]
			if !uf.union(ci, cj) {
				continue
			}
			repA := cr.Members[ci][0]
			repB := cr.Members[cj][0]
			out = append(out, Introduction{A: repA, B: repB, Reason: ReasonMSTFallback})
		}
	}
	return out
}

func phase2ClusterBridging(s *models.TrustNetworkState, cr *graph.ClusterResult, limit int) []Introduction {
	if limit <= 0 || len(cr.Members) < 2 {
		return nil
	}
	clusterIDs := make([]graph.ClusterID, 0, len(cr.Members))
	for id := range cr.Members {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Slice(clusterIDs, func(i, j int) bool { return clusterIDs[i] < clusterIDs[j] })

	var out []Introduction
	for i := 0; i < len(clusterIDs) && len(out) < limit; i++ {
		for j := i + 1; j < len(clusterIDs) && len(out) < limit; j++ {
			ci, cj := clusterIDs[i], clusterIDs[j]
			members1, members2 := cr.Members[ci], cr.Members[cj]
			if len(members1) < 2 || len(members2) < 2 {
				continue
			}
			// A second, weaker bridge beyond the MST's single link:
			// second-highest-centrality member of each cluster.
			out = append(out, Introduction{A: members1[1], B: members2[1], Reason: ReasonClusterBridging})
		}
	}
	return out
}

// clusterUnionFind is a minimal Union-Find over graph.ClusterID, local to
// mesh-building's MST step; it is intentionally not shared with
// internal/graph's hex-string-keyed Union-Find since the key domains
// never overlap.
type clusterUnionFind struct {
	parent map[graph.ClusterID]graph.ClusterID
}

func newClusterUnionFind(ids []graph.ClusterID) *clusterUnionFind {
	uf := &clusterUnionFind{parent: make(map[graph.ClusterID]graph.ClusterID, len(ids))}
	for _, id := range ids {
		uf.parent[id] = id
	}
	return uf
}

func (uf *clusterUnionFind) find(id graph.ClusterID) graph.ClusterID {
	if uf.parent[id] != id {
		uf.parent[id] = uf.find(uf.parent[id])
	}
	return uf.parent[id]
}

func (uf *clusterUnionFind) union(a, b graph.ClusterID) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	uf.parent[ra] = rb
	return true
}
