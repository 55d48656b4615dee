// Copyright 2025 The Pipeflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dag provides a directed acyclic graph of vertices identified by a
// comparable, ordered key. It is the arena the graph compiler mutates while
// inserting synthesized nodes: vertices plus index-based dependency sets, so
// cycle checks and insertions stay simple and the result is trivially
// copyable.
package dag

import (
	"cmp"
	"fmt"
	"slices"
)

// Vertex is a single node in the graph together with its dependency set.
type Vertex[T cmp.Ordered] struct {
	// ID is the unique identifier of the vertex.
	ID T
	// Order records the position of the vertex in the original input. It is
	// used to break ties deterministically during topological sorting.
	Order int
	// DependsOn is the set of vertex IDs this vertex depends on.
	DependsOn map[T]struct{}
}

// DirectedAcyclicGraph is a DAG keyed by vertex ID. The zero value is not
// usable; construct with NewDirectedAcyclicGraph.
type DirectedAcyclicGraph[T cmp.Ordered] struct {
	// Vertices maps vertex ID to vertex.
	Vertices map[T]*Vertex[T]
}

// NewDirectedAcyclicGraph creates a new empty graph.
func NewDirectedAcyclicGraph[T cmp.Ordered]() *DirectedAcyclicGraph[T] {
	return &DirectedAcyclicGraph[T]{
		Vertices: make(map[T]*Vertex[T]),
	}
}

// CycleError is returned when an operation would create or has detected a
// cycle. Cycle holds one witness cycle, starting and ending at the same
// vertex.
type CycleError[T cmp.Ordered] struct {
	Cycle []T
}

func (e *CycleError[T]) Error() string {
	return fmt.Sprintf("graph contains a cycle: %v", e.Cycle)
}

// AsCycleError returns the *CycleError in err's chain, or nil.
func AsCycleError[T cmp.Ordered](err error) *CycleError[T] {
	for err != nil {
		if ce, ok := err.(*CycleError[T]); ok {
			return ce
		}
		err = unwrap(err)
	}
	return nil
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

// AddVertex adds a new vertex to the graph. Order should reflect the
// position of the vertex in the caller's input; it determines tie-breaking
// during topological sorting.
func (d *DirectedAcyclicGraph[T]) AddVertex(id T, order int) error {
	if _, exists := d.Vertices[id]; exists {
		return fmt.Errorf("vertex %v already exists", id)
	}
	d.Vertices[id] = &Vertex[T]{
		ID:        id,
		Order:     order,
		DependsOn: make(map[T]struct{}),
	}
	return nil
}

// AddDependencies records that vertex `from` depends on each vertex in
// `dependencies`. It rejects unknown vertices, self references, and any edge
// that would close a cycle. A failed call leaves the graph untouched: no
// edge of the call is recorded.
func (d *DirectedAcyclicGraph[T]) AddDependencies(from T, dependencies []T) error {
	fromVertex, ok := d.Vertices[from]
	if !ok {
		return fmt.Errorf("vertex %v does not exist", from)
	}

	for _, dep := range dependencies {
		if dep == from {
			return fmt.Errorf("self reference on vertex %v is not allowed", from)
		}
		if _, ok := d.Vertices[dep]; !ok {
			return fmt.Errorf("vertex %v depends on unknown vertex %v", from, dep)
		}
	}

	added := make([]T, 0, len(dependencies))
	for _, dep := range dependencies {
		if _, ok := fromVertex.DependsOn[dep]; ok {
			continue
		}
		fromVertex.DependsOn[dep] = struct{}{}
		added = append(added, dep)
	}

	if cyclic, cycle := d.hasCycle(); cyclic {
		for _, dep := range added {
			delete(fromVertex.DependsOn, dep)
		}
		return &CycleError[T]{Cycle: cycle}
	}
	return nil
}

// hasCycle reports whether the graph contains a cycle, returning a witness
// cycle when it does. Iterative DFS with a three-color marking.
func (d *DirectedAcyclicGraph[T]) hasCycle() (bool, []T) {
	const (
		white = iota // unvisited
		gray         // on the current DFS path
		black        // fully explored
	)

	color := make(map[T]int, len(d.Vertices))
	parent := make(map[T]T, len(d.Vertices))

	var visit func(T) []T
	visit = func(id T) []T {
		color[id] = gray
		for dep := range d.Vertices[id].DependsOn {
			switch color[dep] {
			case white:
				parent[dep] = id
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			case gray:
				// Found a back edge; reconstruct the cycle dep -> ... -> id -> dep.
				cycle := []T{dep}
				for cur := id; cur != dep; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, dep)
				slices.Reverse(cycle)
				return cycle
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range d.sortedVertexIDs() {
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return true, cycle
			}
		}
	}
	return false, nil
}

// TopologicalSort returns the vertex IDs in dependency order. Vertices that
// are not ordered relative to each other by dependencies come out in their
// insertion Order. Returns a CycleError if the graph is cyclic.
func (d *DirectedAcyclicGraph[T]) TopologicalSort() ([]T, error) {
	visited := make(map[T]struct{}, len(d.Vertices))
	order := make([]T, 0, len(d.Vertices))
	remaining := d.verticesByOrder()

	for len(order) < len(d.Vertices) {
		progressed := false
		for _, v := range remaining {
			if _, done := visited[v.ID]; done {
				continue
			}
			if !d.dependenciesSatisfied(v, visited) {
				continue
			}
			visited[v.ID] = struct{}{}
			order = append(order, v.ID)
			progressed = true
		}
		if !progressed {
			_, cycle := d.hasCycle()
			return nil, &CycleError[T]{Cycle: cycle}
		}
	}
	return order, nil
}

// TopologicalSortLevels groups vertices into levels where every vertex in a
// level depends only on vertices in earlier levels. Within a level the
// insertion Order is preserved. Returns a CycleError if the graph is cyclic.
func (d *DirectedAcyclicGraph[T]) TopologicalSortLevels() ([][]T, error) {
	visited := make(map[T]struct{}, len(d.Vertices))
	levels := make([][]T, 0)

	for len(visited) < len(d.Vertices) {
		level := make([]T, 0)
		for _, v := range d.verticesByOrder() {
			if _, done := visited[v.ID]; done {
				continue
			}
			if d.dependenciesSatisfied(v, visited) {
				level = append(level, v.ID)
			}
		}
		if len(level) == 0 {
			_, cycle := d.hasCycle()
			return nil, &CycleError[T]{Cycle: cycle}
		}
		for _, id := range level {
			visited[id] = struct{}{}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func (d *DirectedAcyclicGraph[T]) dependenciesSatisfied(v *Vertex[T], visited map[T]struct{}) bool {
	for dep := range v.DependsOn {
		if _, ok := visited[dep]; !ok {
			return false
		}
	}
	return true
}

// verticesByOrder returns the vertices sorted by insertion Order, falling
// back to ID for vertices sharing an Order value.
func (d *DirectedAcyclicGraph[T]) verticesByOrder() []*Vertex[T] {
	vertices := make([]*Vertex[T], 0, len(d.Vertices))
	for _, v := range d.Vertices {
		vertices = append(vertices, v)
	}
	slices.SortFunc(vertices, func(a, b *Vertex[T]) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return vertices
}

func (d *DirectedAcyclicGraph[T]) sortedVertexIDs() []T {
	ids := make([]T, 0, len(d.Vertices))
	for _, v := range d.verticesByOrder() {
		ids = append(ids, v.ID)
	}
	return ids
}
