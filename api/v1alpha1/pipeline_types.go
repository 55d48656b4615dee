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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// PipeflowDomainName is the domain used for all pipeflow labels and
// annotations.
const PipeflowDomainName = "pipeflow.run"

// Pipeline is the declarative data-pipeline graph supplied to the compiler.
// It describes the processing steps and their data dependencies; it says
// nothing about where or how the steps are scheduled.
type Pipeline struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec PipelineSpec `json:"spec,omitempty"`
}

// PipelineSpec holds the node list of the pipeline graph.
type PipelineSpec struct {
	// Description is free-form text describing the pipeline.
	Description string `json:"description,omitempty"`

	// Nodes is the ordered list of processing steps. The order is preserved
	// by the compiler wherever the dependency edges leave steps unordered
	// relative to each other.
	Nodes []*PipelineNode `json:"nodes,omitempty"`
}

// PipelineNode is a single processing step in the pipeline graph.
// Nodes are immutable once the pipeline is loaded.
type PipelineNode struct {
	// Name uniquely identifies the node within the pipeline.
	// Must be a valid DNS-1123 label.
	Name string `json:"name,omitempty"`

	// Dependencies lists the names of nodes whose outputs this node consumes.
	// Every entry must refer to another node in the same pipeline.
	Dependencies []string `json:"dependencies,omitempty"`

	// Task optionally overrides how this node is executed. When omitted the
	// compiler derives the execution from the pipeline-wide configuration
	// (image + the runner invocation for this node name).
	Task *NodeTask `json:"task,omitempty"`

	// Resources optionally overrides the pipeline-wide resource defaults for
	// this node. Unset fields inherit the defaults field by field.
	Resources *ResourceSpec `json:"resources,omitempty"`
}

// NodeTask is an explicit task-execution reference for a node: which
// container image to run and with what entrypoint. All fields are optional;
// unset fields fall back to the compiler configuration.
type NodeTask struct {
	// Image overrides the pipeline image for this node only.
	Image string `json:"image,omitempty"`

	// Command overrides the container entrypoint.
	Command []string `json:"command,omitempty"`

	// Args overrides the container arguments.
	Args []string `json:"args,omitempty"`
}
