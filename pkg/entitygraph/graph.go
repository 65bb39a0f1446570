package entitygraph

import (
	"github.com/diwise/entity-store/pkg/entities"
)

// Graph is the mutable container a resolution builds up: at most one
// node per (type, identity) key, a visited set for cycle avoidance
// and a flag recording whether any of the contents came from a live
// remote fetch.
type Graph struct {
	nodes   map[string]Node
	order   []string
	visited map[string]struct{}

	fromRemote bool
}

func NewGraph() *Graph {
	return &Graph{
		nodes:   map[string]Node{},
		visited: map[string]struct{}{},
	}
}

func nodeKey(entityType string, id entities.Identifier) string {
	return entityType + "/" + id.Key()
}

// Insert adds a node to the graph. A node that is already present
// under the same key is merged with the incoming version, last writer
// after merge. The second return value reports whether the key was
// new to the graph.
func (g *Graph) Insert(n Node) (Node, bool) {
	existing, key, ok := g.lookup(n.EntityType(), n.Identity())
	if !ok {
		key := nodeKey(n.EntityType(), n.Identity())
		g.nodes[key] = n
		g.order = append(g.order, key)
		return n, true
	}

	merged := existing.Merge(n)
	mergedKey := nodeKey(merged.EntityType(), merged.Identity())

	if mergedKey != key {
		// merge confirmed the identity under a new remote key
		g.drop(key)
		g.order = append(g.order, mergedKey)
	}

	g.nodes[mergedKey] = merged
	return merged, false
}

func (g *Graph) lookup(entityType string, id entities.Identifier) (Node, string, bool) {
	if n, ok := g.nodes[nodeKey(entityType, id)]; ok {
		return n, nodeKey(entityType, id), true
	}

	for key, n := range g.nodes {
		if n.EntityType() == entityType && n.Identity().Equals(id) {
			return n, key, true
		}
	}

	return nil, "", false
}

func (g *Graph) drop(key string) {
	delete(g.nodes, key)

	for idx, k := range g.order {
		if k == key {
			g.order = append(g.order[:idx], g.order[idx+1:]...)
			break
		}
	}
}

// Find returns the node stored for the given type and identity.
func (g *Graph) Find(entityType string, id entities.Identifier) (Node, bool) {
	n, _, ok := g.lookup(entityType, id)
	return n, ok
}

func (g *Graph) Contains(entityType string, id entities.Identifier) bool {
	_, _, ok := g.lookup(entityType, id)
	return ok
}

// Visited reports whether a node has already been expanded during
// this resolution.
func (g *Graph) Visited(n Node) bool {
	_, ok := g.visited[nodeKey(n.EntityType(), n.Identity())]
	return ok
}

func (g *Graph) MarkVisited(n Node) {
	g.visited[nodeKey(n.EntityType(), n.Identity())] = struct{}{}
}

// NoteRemoteOrigin records that some of the graph's contents came
// from a live remote fetch rather than purely local or cached data.
func (g *Graph) NoteRemoteOrigin() {
	g.fromRemote = true
}

func (g *Graph) FromRemote() bool {
	return g.fromRemote
}

// Nodes returns the graph contents in insertion order.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, 0, len(g.order))
	for _, key := range g.order {
		nodes = append(nodes, g.nodes[key])
	}
	return nodes
}

func (g *Graph) Len() int {
	return len(g.nodes)
}
