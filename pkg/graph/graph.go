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

package graph

import (
	"github.com/pipeflow-run/pipeflow/pkg/graph/dag"
)

// CompiledGraph is the final orchestration graph produced by one
// compilation: the original pipeline nodes plus the synthesized lifecycle
// nodes, with every original dependency edge preserved. It is built once
// per invocation and then handed, read-only, to the emitter.
type CompiledGraph struct {
	// PipelineName is the name of the compiled pipeline.
	PipelineName string

	// Namespace the workflow is compiled for.
	Namespace string

	// ServiceAccountName the workflow pods run under, when configured.
	ServiceAccountName string

	// DAG is the directed acyclic graph of node dependencies.
	DAG *dag.DirectedAcyclicGraph[string]

	// Nodes maps node ID to immutable node spec.
	Nodes map[string]*Node

	// TopologicalOrder is the sorted order of node IDs.
	TopologicalOrder []string

	// Volume is the storage lifecycle plan the graph was compiled with.
	Volume VolumeLifecyclePlan

	// Tracking is the experiment context the graph was compiled with.
	Tracking ExperimentContext
}

// TaskNodes returns the IDs of the original pipeline task nodes in
// topological order, excluding synthesized lifecycle nodes.
func (g *CompiledGraph) TaskNodes() []string {
	ids := make([]string, 0, len(g.TopologicalOrder))
	for _, id := range g.TopologicalOrder {
		if g.Nodes[id].Meta.Type == NodeTypeTask {
			ids = append(ids, id)
		}
	}
	return ids
}
