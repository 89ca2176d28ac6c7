package transaction

import (
	"github.com/HITGYA/Mit-6.830/common"
)

// waitForGraph is a directed graph over transactions; an edge A->B means A is blocked on a lock
// held by B. It is not synchronized and is only touched under the LockManager's mutex.
type waitForGraph struct {
	edges map[common.TransactionID]map[common.TransactionID]struct{}
}

func newWaitForGraph() *waitForGraph {
	return &waitForGraph{edges: make(map[common.TransactionID]map[common.TransactionID]struct{})}
}

func (g *waitForGraph) addEdge(from, to common.TransactionID) {
	out, ok := g.edges[from]
	if !ok {
		out = make(map[common.TransactionID]struct{})
		g.edges[from] = out
	}
	out[to] = struct{}{}
}

// removeOutgoing drops every edge leaving tid. A transaction waits on at most one request at a
// time, so this undoes exactly the edges of its current wait.
func (g *waitForGraph) removeOutgoing(tid common.TransactionID) {
	delete(g.edges, tid)
}

// removeVertex drops tid and every edge touching it.
func (g *waitForGraph) removeVertex(tid common.TransactionID) {
	delete(g.edges, tid)
	for from, out := range g.edges {
		delete(out, tid)
		if len(out) == 0 {
			delete(g.edges, from)
		}
	}
}

const (
	white = iota // unvisited
	grey         // on the current DFS path
	black        // fully explored
)

// hasCycle runs a depth-first search from every vertex and reports whether any back edge exists.
func (g *waitForGraph) hasCycle() bool {
	color := make(map[common.TransactionID]int, len(g.edges))
	var visit func(common.TransactionID) bool
	visit = func(v common.TransactionID) bool {
		color[v] = grey
		for next := range g.edges[v] {
			switch color[next] {
			case grey:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[v] = black
		return false
	}
	for v := range g.edges {
		if color[v] == white && visit(v) {
			return true
		}
	}
	return false
}
