package graph

import (
	"math"
	"testing"
)

func TestShortestPathPrefersCheaperMultiHop(t *testing.T) {
	g := New([]int64{1, 2, 3}, []Connection{
		{FromID: 1, ToID: 2, Weight: 5},
		{FromID: 2, ToID: 3, Weight: 5},
		{FromID: 1, ToID: 3, Weight: 20},
	})

	path := g.ShortestPath(1, 3)
	want := []int64{1, 2, 3}
	if len(path) != len(want) {
		t.Fatalf("ShortestPath(1, 3) = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("ShortestPath(1, 3) = %v, want %v", path, want)
		}
	}

	dist, ok := g.Distance(1, 3)
	if !ok || dist != 10 {
		t.Errorf("Distance(1, 3) = %v, %v, want 10, true", dist, ok)
	}
}

func TestShortestPathDisconnected(t *testing.T) {
	g := New([]int64{1, 2, 3, 4}, []Connection{
		{FromID: 1, ToID: 2, Weight: 1},
		{FromID: 3, ToID: 4, Weight: 1},
	})

	if path := g.ShortestPath(1, 4); len(path) != 0 {
		t.Errorf("expected empty path between disconnected nodes, got %v", path)
	}
	if _, ok := g.Distance(1, 4); ok {
		t.Error("expected Distance to report unreachable")
	}
}

func TestShortestPathEdgeCases(t *testing.T) {
	g := New([]int64{1, 2}, []Connection{{FromID: 1, ToID: 2, Weight: 3}})

	if path := g.ShortestPath(1, 1); len(path) != 1 || path[0] != 1 {
		t.Errorf("ShortestPath(1, 1) = %v, want [1]", path)
	}
	if path := g.ShortestPath(99, 1); path != nil {
		t.Errorf("unknown source should yield empty path, got %v", path)
	}
	// Edges are directed: 2 cannot reach 1.
	if path := g.ShortestPath(2, 1); len(path) != 0 {
		t.Errorf("expected empty path against edge direction, got %v", path)
	}
}

func TestShortestPathIsolatedNode(t *testing.T) {
	g := New([]int64{1, 2, 3}, []Connection{{FromID: 1, ToID: 2, Weight: 1}})

	if path := g.ShortestPath(3, 1); len(path) != 0 {
		t.Errorf("isolated node should reach nothing, got %v", path)
	}
	if path := g.ShortestPath(1, 3); len(path) != 0 {
		t.Errorf("nothing should reach an isolated node, got %v", path)
	}
}

func TestShortestPathRelaxesLongerFirstPath(t *testing.T) {
	// 1->2->4 costs 10, but 1->3->4 costs 4 and must win.
	g := New([]int64{1, 2, 3, 4}, []Connection{
		{FromID: 1, ToID: 2, Weight: 5},
		{FromID: 2, ToID: 4, Weight: 5},
		{FromID: 1, ToID: 3, Weight: 2},
		{FromID: 3, ToID: 4, Weight: 2},
	})

	path := g.ShortestPath(1, 4)
	want := []int64{1, 3, 4}
	if len(path) != len(want) {
		t.Fatalf("ShortestPath(1, 4) = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("ShortestPath(1, 4) = %v, want %v", path, want)
		}
	}
}

func TestHaversineMeters(t *testing.T) {
	// One degree of latitude is roughly 111.2 km.
	got := HaversineMeters(29.0, -110.95, 30.0, -110.95)
	if math.Abs(got-111195) > 500 {
		t.Errorf("HaversineMeters one degree latitude = %.0f, want ~111195", got)
	}

	if got := HaversineMeters(29.07, -110.95, 29.07, -110.95); got != 0 {
		t.Errorf("distance to self = %v, want 0", got)
	}
}
