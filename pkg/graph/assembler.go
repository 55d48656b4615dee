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
	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
	"github.com/pipeflow-run/pipeflow/pkg/graph/dag"
)

// Synthesized nodes get indexes outside the original 0..n-1 range so the
// deterministic tie-break of the topological sort places them naturally:
// lifecycle roots first, teardown last.
const (
	trackingInitIndex = -3
	volumeInitIndex   = -2
	volumeSeedIndex   = -1
)

type assembler struct{}

func newAssembler() Assembler { return &assembler{} }

// Assemble materializes the CompiledGraph: the original nodes and edges
// unchanged, plus the synthesized lifecycle nodes wired in. The result is
// re-validated for acyclicity as a defense against synthesis bugs.
func (a *assembler) Assemble(
	pipeline *v1alpha1.Pipeline,
	cfg *v1alpha1.CompileConfig,
	nodes map[string]*Node,
	volume VolumeLifecyclePlan,
	tracking ExperimentContext,
) (*CompiledGraph, error) {
	d := dag.NewDirectedAcyclicGraph[string]()
	for _, pn := range pipeline.Spec.Nodes {
		node := nodes[pn.Name]
		if node == nil {
			return nil, graphErrf("assembler", "node %q was not built", pn.Name)
		}
		if err := d.AddVertex(node.Meta.ID, node.Meta.Index); err != nil {
			return nil, graphErr("assembler", err)
		}
	}
	for _, node := range nodes {
		if err := d.AddDependencies(node.Meta.ID, node.Meta.Dependencies); err != nil {
			return nil, graphErr("assembler", err)
		}
	}

	// Original roots before synthesis; the storage lifecycle attaches here.
	roots := originalRoots(pipeline, nodes)

	if tracking.Enabled {
		init := &Node{
			Meta: NodeMeta{
				ID:      TrackingInitNodeID,
				Index:   trackingInitIndex,
				Type:    NodeTypeTrackingInit,
				Trigger: TriggerAllSucceeded,
			},
			Task: tracking.InitTask,
		}
		nodes[init.Meta.ID] = init
		if err := d.AddVertex(init.Meta.ID, init.Meta.Index); err != nil {
			return nil, graphErr("assembler", err)
		}
		// Every original node depends on the init node directly, so all
		// tasks correlate to one run and a tracking failure halts the
		// pipeline before any work starts.
		for _, pn := range pipeline.Spec.Nodes {
			if err := a.addDependency(d, nodes[pn.Name], init.Meta.ID); err != nil {
				return nil, err
			}
		}
	}

	if volume.Enabled {
		if err := a.assembleVolume(d, nodes, pipeline, roots, volume, tracking); err != nil {
			return nil, err
		}
	}

	// Defensive re-validation: synthesis must never introduce a cycle.
	order, err := d.TopologicalSort()
	if err != nil {
		return nil, graphErrf("assembler", "synthesized graph is not acyclic: %v", err)
	}

	return &CompiledGraph{
		PipelineName:       pipeline.Name,
		Namespace:          cfg.Namespace,
		ServiceAccountName: cfg.ServiceAccountName,
		DAG:                d,
		Nodes:              nodes,
		TopologicalOrder:   order,
		Volume:             volume,
		Tracking:           tracking,
	}, nil
}

// assembleVolume inserts the provisioning node ahead of every original root
// (transitively ahead of every task), the optional seeding node between
// them, and the teardown node behind every original task with the
// run-regardless trigger.
func (a *assembler) assembleVolume(
	d *dag.DirectedAcyclicGraph[string],
	nodes map[string]*Node,
	pipeline *v1alpha1.Pipeline,
	roots []*Node,
	volume VolumeLifecyclePlan,
	tracking ExperimentContext,
) error {
	init := &Node{
		Meta: NodeMeta{
			ID:      VolumeInitNodeID,
			Index:   volumeInitIndex,
			Type:    NodeTypeVolumeInit,
			Trigger: TriggerAllSucceeded,
		},
		Task: volume.InitTask,
	}
	nodes[init.Meta.ID] = init
	if err := d.AddVertex(init.Meta.ID, init.Meta.Index); err != nil {
		return graphErr("assembler", err)
	}
	if tracking.Enabled {
		// Ordering preference, not a correctness requirement: provisioning
		// runs after experiment-init so its logs can carry the run ID.
		if err := a.addDependency(d, init, TrackingInitNodeID); err != nil {
			return err
		}
	}

	storageHead := init
	if volume.SeedTask != nil {
		seed := &Node{
			Meta: NodeMeta{
				ID:      VolumeSeedNodeID,
				Index:   volumeSeedIndex,
				Type:    NodeTypeVolumeSeed,
				Trigger: TriggerAllSucceeded,
			},
			Task: volume.SeedTask,
		}
		nodes[seed.Meta.ID] = seed
		if err := d.AddVertex(seed.Meta.ID, seed.Meta.Index); err != nil {
			return graphErr("assembler", err)
		}
		if err := a.addDependency(d, seed, init.Meta.ID); err != nil {
			return err
		}
		storageHead = seed
	}

	for _, root := range roots {
		if err := a.addDependency(d, root, storageHead.Meta.ID); err != nil {
			return err
		}
	}

	teardown := &Node{
		Meta: NodeMeta{
			ID:      VolumeTeardownNodeID,
			Index:   len(pipeline.Spec.Nodes),
			Type:    NodeTypeVolumeTeardown,
			Trigger: TriggerAllFinished,
		},
		Task: volume.TeardownTask,
	}
	nodes[teardown.Meta.ID] = teardown
	if err := d.AddVertex(teardown.Meta.ID, teardown.Meta.Index); err != nil {
		return graphErr("assembler", err)
	}
	// The teardown depends on every original node, not just the leaves, so
	// the volume outlives stragglers on already-failed branches.
	for _, pn := range pipeline.Spec.Nodes {
		if err := a.addDependency(d, teardown, pn.Name); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) addDependency(d *dag.DirectedAcyclicGraph[string], node *Node, dep string) error {
	if err := d.AddDependencies(node.Meta.ID, []string{dep}); err != nil {
		return graphErr("assembler", err)
	}
	node.Meta.Dependencies = append(node.Meta.Dependencies, dep)
	return nil
}

func originalRoots(pipeline *v1alpha1.Pipeline, nodes map[string]*Node) []*Node {
	roots := make([]*Node, 0)
	for _, pn := range pipeline.Spec.Nodes {
		if len(pn.Dependencies) == 0 {
			roots = append(roots, nodes[pn.Name])
		}
	}
	return roots
}
