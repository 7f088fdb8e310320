package graph

import (
	"sort"

	"github.com/roder/stroma/pkg/models"
)

// ClusterID identifies one cluster within a ClusterResult. It is stable
// across calls given the same input state — it is the hex string of the
// cluster's highest-centrality member, so callers can compare cluster
// identity across successive Analyze calls without retaining the
// previous result.
type ClusterID string

// ClusterResult is the outcome of one Analyze pass over a mutual-vouch
// graph: the cluster each member belongs to, each cluster's members
// ordered by centrality, and whether the network is small enough that
// the bootstrap exception collapsed everything into a single cluster.
type ClusterResult struct {
	ClusterOf        map[models.MemberHash]ClusterID
	Members          map[ClusterID][]models.MemberHash
	BootstrapCollapse bool
}

// NeedsAnnouncement reports whether splitting a member out of its
// previous cluster (or merging two clusters) is significant enough that
// the group should be notified, per spec.md §4.4: true whenever the
// member's cluster assignment changed between two results.
func NeedsAnnouncement(prev, next *ClusterResult, member models.MemberHash) bool {
	if prev == nil {
		return false
	}
	return prev.ClusterOf[member] != next.ClusterOf[member]
}

// bootstrapClusterThreshold is the cluster-count threshold below which
// Analyze collapses the whole network into a single cluster rather than
// reporting bridge-separated clusters. Per DESIGN.md's Open Question
// resolution this is a CLUSTER count, not a member count: a network with
// many members but fewer than four mutual-vouch clusters still collapses.
const bootstrapClusterThreshold = 4

// Analyze computes mutual-vouch connected components via Union-Find, then
// splits each component along its bridges (Tarjan, O(V+E)) to produce
// finer-grained clusters. If the bridge-split result has fewer than
// bootstrapClusterThreshold clusters, the bootstrap exception collapses
// everything into one cluster instead — small groups shouldn't fracture
// into many one-member "clusters" before they have enough structure to
// make that meaningful.
func Analyze(s *models.TrustNetworkState) *ClusterResult {
	edges := mutualVouchEdges(s)
	adj := buildAdjacency(s.Members, edges)
	bridges := findBridges(adj)
	components := componentsAfterRemovingBridges(s.Members, adj, bridges)

	if len(components) < bootstrapClusterThreshold {
		return collapseToSingleCluster(s.Members, edges)
	}

	return buildResult(components, edges)
}

func mutualVouchEdges(s *models.TrustNetworkState) [][2]models.MemberHash {
	var edges [][2]models.MemberHash
	seen := map[[2]models.MemberHash]bool{}
	for a, targets := range s.Vouches {
		for b := range targets {
			if !s.Vouches.Has(b, a) {
				continue
			}
			key := edgeKey(a, b)
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, key)
		}
	}
	return edges
}

func edgeKey(a, b models.MemberHash) [2]models.MemberHash {
	if a.String() < b.String() {
		return [2]models.MemberHash{a, b}
	}
	return [2]models.MemberHash{b, a}
}

func buildAdjacency(members models.MemberSet, edges [][2]models.MemberHash) map[models.MemberHash][]models.MemberHash {
	adj := make(map[models.MemberHash][]models.MemberHash, len(members))
	for m := range members {
		adj[m] = nil
	}
	for _, e := range edges {
		adj[e[0]] = append(adj[e[0]], e[1])
		adj[e[1]] = append(adj[e[1]], e[0])
	}
	return adj
}

func collapseToSingleCluster(members models.MemberSet, edges [][2]models.MemberHash) *ClusterResult {
	ids := sortedHashes(members.Slice())
	ordered := orderByCentrality(ids, edges)
	var clusterID ClusterID
	if len(ordered) > 0 {
		clusterID = ClusterID(ordered[0].String())
	}
	clusterOf := make(map[models.MemberHash]ClusterID, len(ids))
	for _, m := range ids {
		clusterOf[m] = clusterID
	}
	return &ClusterResult{
		ClusterOf:         clusterOf,
		Members:           map[ClusterID][]models.MemberHash{clusterID: ordered},
		BootstrapCollapse: true,
	}
}

func buildResult(components map[string][]string, edges [][2]models.MemberHash) *ClusterResult {
	clusterOf := map[models.MemberHash]ClusterID{}
	membersByCluster := map[ClusterID][]models.MemberHash{}

	for _, keys := range components {
		hashes := make([]models.MemberHash, 0, len(keys))
		for _, k := range keys {
			h, err := models.MemberHashFromHex(k)
			if err != nil {
				continue
			}
			hashes = append(hashes, h)
		}
		ordered := orderByCentrality(sortedHashes(hashes), edges)
		if len(ordered) == 0 {
			continue
		}
		id := ClusterID(ordered[0].String())
		for _, h := range ordered {
			clusterOf[h] = id
		}
		membersByCluster[id] = ordered
	}
	return &ClusterResult{ClusterOf: clusterOf, Members: membersByCluster}
}

func sortedHashes(hs []models.MemberHash) []models.MemberHash {
	out := append([]models.MemberHash(nil), hs...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// orderByCentrality sorts a cluster's members by degree within the full
// edge set, descending, breaking ties on hash value so the ordering is
// deterministic across replicas. Degree is spec.md §4.4's chosen
// centrality tie-breaker — cheap to compute and stable under the same
// mutual-vouch edge set every replica already has.
func orderByCentrality(members []models.MemberHash, edges [][2]models.MemberHash) []models.MemberHash {
	degree := map[models.MemberHash]int{}
	for _, e := range edges {
		degree[e[0]]++
		degree[e[1]]++
	}
	out := append([]models.MemberHash(nil), members...)
	sort.Slice(out, func(i, j int) bool {
		di, dj := degree[out[i]], degree[out[j]]
		if di != dj {
			return di > dj
		}
		return out[i].String() < out[j].String()
	})
	return out
}
