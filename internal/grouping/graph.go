package grouping

import (
	"sort"

	"golang-invoice-dedup-service/internal/models"
)

// disjointSet is a union-find structure with path halving and union by rank.
type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

func (ds *disjointSet) find(x int) int {
	for ds.parent[x] != x {
		ds.parent[x] = ds.parent[ds.parent[x]]
		x = ds.parent[x]
	}
	return x
}

func (ds *disjointSet) union(a, b int) {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
	case ds.rank[ra] > ds.rank[rb]:
		ds.parent[rb] = ra
	default:
		ds.parent[rb] = ra
		ds.rank[ra]++
	}
}

// Component is one connected component of the similarity graph.
type Component struct {
	Keys      []string
	EdgeCount int
	ScoreSum  float64
}

// MeanScore is the arithmetic mean of the component's edge scores, or 0
// when it has no edges.
func (c Component) MeanScore() float64 {
	if c.EdgeCount == 0 {
		return 0
	}
	return c.ScoreSum / float64(c.EdgeCount)
}

// Graph is an undirected weighted graph over primary keys. Nodes exist only
// through edges.
type Graph struct {
	index map[string]int
	keys  []string
	edges []models.SimilarityEdge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

func (g *Graph) node(key string) int {
	if i, ok := g.index[key]; ok {
		return i
	}
	i := len(g.keys)
	g.index[key] = i
	g.keys = append(g.keys, key)
	return i
}

// AddEdge adds an undirected edge. Self-loops are ignored.
func (g *Graph) AddEdge(e models.SimilarityEdge) {
	if e.SourceKey == e.DestKey {
		return
	}
	g.node(e.SourceKey)
	g.node(e.DestKey)
	g.edges = append(g.edges, e)
}

// NodeCount returns the number of distinct keys seen.
func (g *Graph) NodeCount() int {
	return len(g.keys)
}

// Components returns the connected components with sorted keys, ordered by
// their smallest key.
func (g *Graph) Components() []Component {
	ds := newDisjointSet(len(g.keys))
	for _, e := range g.edges {
		ds.union(g.index[e.SourceKey], g.index[e.DestKey])
	}

	byRoot := make(map[int]*Component)
	var order []int
	for i, key := range g.keys {
		root := ds.find(i)
		c, ok := byRoot[root]
		if !ok {
			c = &Component{}
			byRoot[root] = c
			order = append(order, root)
		}
		c.Keys = append(c.Keys, key)
	}
	for _, e := range g.edges {
		c := byRoot[ds.find(g.index[e.SourceKey])]
		c.EdgeCount++
		c.ScoreSum += e.Score
	}

	out := make([]Component, 0, len(order))
	for _, root := range order {
		c := byRoot[root]
		sort.Strings(c.Keys)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keys[0] < out[j].Keys[0] })
	return out
}
