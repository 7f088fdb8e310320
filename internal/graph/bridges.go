package graph

import "github.com/roder/stroma/pkg/models"

// findBridges runs an iterative Tarjan bridge-finding pass over adj in
// O(V+E), returning every edge whose removal disconnects its two
// endpoints. The traversal is iterative (an explicit stack, not Go call
// recursion) specifically so a single large cluster — spec.md §4.4 caps
// the perf budget at <500ms for 1000 members — can't blow the goroutine
// stack on a long vouch chain.
func findBridges(adj map[models.MemberHash][]models.MemberHash) map[[2]models.MemberHash]bool {
	disc := map[models.MemberHash]int{}
	low := map[models.MemberHash]int{}
	bridges := map[[2]models.MemberHash]bool{}
	timer := 0

	type frame struct {
		node          models.MemberHash
		parent        models.MemberHash
		hasParent     bool
		parentSkipped bool
		childIdx      int
	}

	for root := range adj {
		if _, visited := disc[root]; visited {
			continue
		}
		stack := []*frame{{node: root, hasParent: false}}
		disc[root] = timer
		low[root] = timer
		timer++

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.childIdx < len(adj[top.node]) {
				child := adj[top.node][top.childIdx]
				top.childIdx++
				if top.hasParent && !top.parentSkipped && child == top.parent {
					// Skip exactly one parent edge; a parallel edge back
					// to the same parent (shouldn't occur in a simple
					// vouch graph) would otherwise falsely suppress a
					// real bridge.
					top.parentSkipped = true
					continue
				}
				if _, visited := disc[child]; !visited {
					disc[child] = timer
					low[child] = timer
					timer++
					stack = append(stack, &frame{node: child, parent: top.node, hasParent: true})
				} else if disc[child] < low[top.node] {
					low[top.node] = disc[child]
				}
				continue
			}

			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				parentFrame := stack[len(stack)-1]
				if low[top.node] < low[parentFrame.node] {
					low[parentFrame.node] = low[top.node]
				}
				if low[top.node] > disc[parentFrame.node] {
					bridges[edgeKey(parentFrame.node, top.node)] = true
				}
			}
		}
	}
	return bridges
}

// componentsAfterRemovingBridges returns the connected components of adj
// once every bridge edge has been cut, keyed by each member's hex string
// (Union-Find's native key type).
func componentsAfterRemovingBridges(members models.MemberSet, adj map[models.MemberHash][]models.MemberHash, bridges map[[2]models.MemberHash]bool) map[string][]string {
	uf := newUnionFind()
	for m := range members {
		uf.find(m.String())
	}
	for a, neighbours := range adj {
		for _, b := range neighbours {
			if bridges[edgeKey(a, b)] {
				continue
			}
			uf.union(a.String(), b.String())
		}
	}
	return uf.components()
}
