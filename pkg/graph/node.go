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
	"maps"
	"slices"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Well-known IDs of the synthesized lifecycle nodes. Original pipeline
// nodes must not reuse them.
const (
	// VolumeInitNodeID provisions the shared volume before any task runs.
	VolumeInitNodeID = "init-volume"
	// VolumeSeedNodeID populates the fresh volume with the initial dataset
	// layout. Present only when seeding is configured.
	VolumeSeedNodeID = "seed-volume"
	// VolumeTeardownNodeID deletes the shared volume after all tasks
	// finished, successfully or not.
	VolumeTeardownNodeID = "teardown-volume"
	// TrackingInitNodeID establishes the experiment run every task reports
	// to.
	TrackingInitNodeID = "experiment-init"
)

// NodeType identifies the kind of node in the compiled graph.
type NodeType int

const (
	// NodeTypeTask is an original pipeline step running user code.
	NodeTypeTask NodeType = iota
	// NodeTypeVolumeInit is the synthesized storage provisioning node.
	NodeTypeVolumeInit
	// NodeTypeVolumeSeed is the synthesized storage seeding node.
	NodeTypeVolumeSeed
	// NodeTypeVolumeTeardown is the synthesized storage teardown node.
	NodeTypeVolumeTeardown
	// NodeTypeTrackingInit is the synthesized experiment-init node.
	NodeTypeTrackingInit
)

// String returns a human-readable string for the node type.
func (t NodeType) String() string {
	switch t {
	case NodeTypeTask:
		return "Task"
	case NodeTypeVolumeInit:
		return "VolumeInit"
	case NodeTypeVolumeSeed:
		return "VolumeSeed"
	case NodeTypeVolumeTeardown:
		return "VolumeTeardown"
	case NodeTypeTrackingInit:
		return "TrackingInit"
	default:
		return "Unknown"
	}
}

// TriggerPolicy decides whether a node executes based on its predecessors'
// outcomes.
type TriggerPolicy string

const (
	// TriggerAllSucceeded runs the node only when every predecessor
	// succeeded. This is the policy of every ordinary node: an upstream
	// failure halts the affected downstream branch.
	TriggerAllSucceeded TriggerPolicy = "AllSucceeded"
	// TriggerAllFinished runs the node once every predecessor reached a
	// terminal state, regardless of outcome. Used for cleanup so upstream
	// failures cannot skip it.
	TriggerAllFinished TriggerPolicy = "AllFinished"
)

// NodeMeta contains immutable metadata about a compiled node.
type NodeMeta struct {
	// ID is the unique identifier of the node within the graph.
	ID string
	// Index is the position of the node in the original pipeline node list.
	// Synthesized nodes get indexes outside the original range so ordering
	// stays deterministic.
	Index int
	// Type identifies the kind of node.
	Type NodeType
	// Dependencies lists the IDs of nodes this node depends on.
	Dependencies []string
	// Trigger is the execution trigger policy for this node.
	Trigger TriggerPolicy
}

// TaskSpec is the execution description of a compiled node: what runs on
// the cluster when the node fires. For resource-action nodes (volume
// provisioning and teardown) the Manifest/Action pair is set instead of the
// container fields.
type TaskSpec struct {
	// Image, Command and Args describe the container invocation.
	Image   string
	Command []string
	Args    []string

	// ImagePullPolicy applied to the task container.
	ImagePullPolicy corev1.PullPolicy

	// Env injected into the container, including the run-identifier value
	// when tracking is enabled.
	Env []corev1.EnvVar

	// Resources are the task's compute requests and limits.
	Resources corev1.ResourceRequirements

	// VolumeMounts and Volumes attach the shared storage and any secret
	// mounts.
	VolumeMounts []corev1.VolumeMount
	Volumes      []corev1.Volume

	// NodeSelector, Labels, Annotations and Tolerations are the placement
	// and metadata attributes of the task pod.
	NodeSelector map[string]string
	Labels       map[string]string
	Annotations  map[string]string
	Tolerations  []corev1.Toleration

	// FSGroup is set on pods mounting the shared volume.
	FSGroup *int64

	// StartupTimeout bounds how long the task may take to start.
	StartupTimeout metav1.Duration

	// RunIDOutputPath, when non-empty, is the in-container file the
	// orchestrator reads the emitted run identifier from.
	RunIDOutputPath string

	// ResourceAction and ResourceManifest describe a cluster-resource
	// action node ("create" or "delete" of the Manifest).
	ResourceAction   string
	ResourceManifest string
}

// Node is an immutable node of the compiled graph.
type Node struct {
	Meta NodeMeta
	Task *TaskSpec
}

// DeepCopy returns a deep copy of the node.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	cp := &Node{
		Meta: NodeMeta{
			ID:           n.Meta.ID,
			Index:        n.Meta.Index,
			Type:         n.Meta.Type,
			Dependencies: slices.Clone(n.Meta.Dependencies),
			Trigger:      n.Meta.Trigger,
		},
	}
	if n.Task != nil {
		task := *n.Task
		task.Command = slices.Clone(n.Task.Command)
		task.Args = slices.Clone(n.Task.Args)
		task.Env = slices.Clone(n.Task.Env)
		task.VolumeMounts = slices.Clone(n.Task.VolumeMounts)
		task.Volumes = slices.Clone(n.Task.Volumes)
		task.Tolerations = slices.Clone(n.Task.Tolerations)
		task.NodeSelector = maps.Clone(n.Task.NodeSelector)
		task.Labels = maps.Clone(n.Task.Labels)
		task.Annotations = maps.Clone(n.Task.Annotations)
		task.Resources = *n.Task.Resources.DeepCopy()
		if n.Task.FSGroup != nil {
			fsGroup := *n.Task.FSGroup
			task.FSGroup = &fsGroup
		}
		cp.Task = &task
	}
	return cp
}
