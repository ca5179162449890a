// Package graph implements the internal fallback routing engine: shortest
// paths over the location/connection graph, independent of the upstream
// provider.
package graph

import "container/heap"

// Connection is one directed weighted edge between two locations.
type Connection struct {
	FromID int64
	ToID   int64
	Weight float64
}

// Graph is a directed weighted adjacency mapping. It is not necessarily
// symmetric and may contain disconnected components.
type Graph struct {
	adj map[int64][]edge
}

type edge struct {
	to     int64
	weight float64
}

// New builds a graph from all known location ids and connection records.
// Isolated locations appear with an empty neighbor list.
func New(locationIDs []int64, connections []Connection) *Graph {
	g := &Graph{adj: make(map[int64][]edge, len(locationIDs))}
	for _, id := range locationIDs {
		g.adj[id] = nil
	}
	for _, c := range connections {
		g.adj[c.FromID] = append(g.adj[c.FromID], edge{to: c.ToID, weight: c.Weight})
	}
	return g
}

// ShortestPath runs Dijkstra from source to destination and returns the
// ordered node ids, or an empty path when the destination is unreachable.
// Unreachable pairs are not an error. Ties on equal distance resolve in
// whatever order the priority queue yields.
func (g *Graph) ShortestPath(source, destination int64) []int64 {
	if _, ok := g.adj[source]; !ok {
		return nil
	}

	dist := make(map[int64]float64, len(g.adj))
	prev := make(map[int64]int64, len(g.adj))
	dist[source] = 0

	pq := &nodeQueue{{id: source, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		current := heap.Pop(pq).(nodeItem)
		if current.id == destination {
			break
		}
		if d, ok := dist[current.id]; ok && current.dist > d {
			continue // stale queue entry
		}
		for _, e := range g.adj[current.id] {
			candidate := current.dist + e.weight
			if d, ok := dist[e.to]; !ok || candidate < d {
				dist[e.to] = candidate
				prev[e.to] = current.id
				heap.Push(pq, nodeItem{id: e.to, dist: candidate})
			}
		}
	}

	return reconstruct(prev, source, destination)
}

// Distance returns the accumulated weight of the shortest path, with ok
// reporting whether the destination is reachable at all.
func (g *Graph) Distance(source, destination int64) (float64, bool) {
	path := g.ShortestPath(source, destination)
	if len(path) == 0 {
		return 0, false
	}
	total := 0.0
	for i := 0; i < len(path)-1; i++ {
		for _, e := range g.adj[path[i]] {
			if e.to == path[i+1] {
				total += e.weight
				break
			}
		}
	}
	return total, true
}

// reconstruct walks predecessor links backward from destination; when the
// walk never reaches the source the destination is unreachable.
func reconstruct(prev map[int64]int64, source, destination int64) []int64 {
	if source == destination {
		return []int64{source}
	}
	var path []int64
	current := destination
	for {
		p, ok := prev[current]
		if !ok {
			return nil
		}
		path = append([]int64{current}, path...)
		current = p
		if current == source {
			return append([]int64{source}, path...)
		}
	}
}

// nodeQueue is a min-heap keyed by accumulated distance.
type nodeQueue []nodeItem

type nodeItem struct {
	id   int64
	dist float64
}

func (q nodeQueue) Len() int           { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)        { *q = append(*q, x.(nodeItem)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
