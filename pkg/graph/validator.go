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
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
	"github.com/pipeflow-run/pipeflow/pkg/graph/dag"
)

// reservedNodeNames are the IDs claimed by synthesized lifecycle nodes.
// Pipeline nodes must not use them.
var reservedNodeNames = sets.New(
	VolumeInitNodeID,
	VolumeSeedNodeID,
	VolumeTeardownNodeID,
	TrackingInitNodeID,
)

type validator struct{}

func newValidator() Validator { return &validator{} }

// Validate enforces the compile-time input rules: a usable configuration,
// well-formed unique node names, no dangling dependency references, an
// acyclic input graph, and valid resource/secret/duration values. All
// violations surface here, before any synthesis.
func (v *validator) Validate(pipeline *v1alpha1.Pipeline, cfg *v1alpha1.CompileConfig) error {
	if err := v.validateConfig(cfg); err != nil {
		return err
	}
	if pipeline.Name == "" {
		return configurationf("validator", "pipeline has no name")
	}
	if len(pipeline.Spec.Nodes) == 0 {
		return graphErrf("validator", "pipeline %q has no nodes", pipeline.Name)
	}

	names := sets.New[string]()
	for _, node := range pipeline.Spec.Nodes {
		if err := v.validateNodeName(node.Name); err != nil {
			return graphErr("validator", err)
		}
		if names.Has(node.Name) {
			return graphErrf("validator", "duplicate node name %q", node.Name)
		}
		names.Insert(node.Name)
	}

	for _, node := range pipeline.Spec.Nodes {
		for _, dep := range node.Dependencies {
			if !names.Has(dep) {
				return graphErrf("validator", "node %q depends on unknown node %q", node.Name, dep)
			}
		}
	}

	if err := v.validateAcyclic(pipeline); err != nil {
		return err
	}

	// Resource values are checked for the defaults and every override
	// before the resolver merges them, so a bad value is reported against
	// the spec that carries it.
	if cfg.Resources != nil {
		if err := validateResourceSpec(cfg.Resources); err != nil {
			return configurationf("validator", "default resources: %v", err)
		}
	}
	for _, node := range pipeline.Spec.Nodes {
		if node.Resources == nil {
			continue
		}
		if err := validateResourceSpec(node.Resources); err != nil {
			return configurationf("validator", "node %q resources: %v", node.Name, err)
		}
	}
	return nil
}

func (v *validator) validateConfig(cfg *v1alpha1.CompileConfig) error {
	if cfg.Image == "" {
		return configurationf("validator", "image is required")
	}
	if cfg.StartupTimeoutSeconds != nil && *cfg.StartupTimeoutSeconds <= 0 {
		return configurationf("validator", "startupTimeoutSeconds must be positive, got %d", *cfg.StartupTimeoutSeconds)
	}
	switch cfg.ImagePullPolicy {
	case "", corev1.PullAlways, corev1.PullIfNotPresent, corev1.PullNever:
	default:
		return configurationf("validator", "unknown imagePullPolicy %q", cfg.ImagePullPolicy)
	}
	return nil
}

func (v *validator) validateNodeName(name string) error {
	if name == "" {
		return fmt.Errorf("node with empty name")
	}
	if msgs := validation.IsDNS1123Label(name); len(msgs) > 0 {
		return fmt.Errorf("invalid node name %q: %s", name, strings.Join(msgs, "; "))
	}
	if reservedNodeNames.Has(name) {
		return fmt.Errorf("node name %q is reserved for a synthesized lifecycle node", name)
	}
	return nil
}

// validateAcyclic replays the input edges into a fresh DAG; any rejected
// edge means the input pipeline is cyclic.
func (v *validator) validateAcyclic(pipeline *v1alpha1.Pipeline) error {
	d := dag.NewDirectedAcyclicGraph[string]()
	for i, node := range pipeline.Spec.Nodes {
		if err := d.AddVertex(node.Name, i); err != nil {
			return graphErr("validator", err)
		}
	}
	for _, node := range pipeline.Spec.Nodes {
		if err := d.AddDependencies(node.Name, node.Dependencies); err != nil {
			if cycle := dag.AsCycleError[string](err); cycle != nil {
				return graphErrf("validator", "pipeline is cyclic: %v", cycle.Cycle)
			}
			return graphErr("validator", err)
		}
	}
	return nil
}
