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
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Workflow API identity of the emitted artifact.
const (
	WorkflowAPIVersion = "argoproj.io/v1alpha1"
	WorkflowKind       = "Workflow"
)

// Workflow is the orchestrator-facing workflow definition the compiler
// emits. The shape follows the Argo Workflows schema for the subset of
// fields the compiler produces; only that subset is modeled here, the
// orchestrator's own types are not imported.
type Workflow struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec WorkflowSpec `json:"spec,omitempty"`
}

// WorkflowSpec is the schedulable body of the workflow.
type WorkflowSpec struct {
	// Entrypoint names the template the orchestrator starts with.
	Entrypoint string `json:"entrypoint,omitempty"`

	// ServiceAccountName runs all pods under the given service account.
	ServiceAccountName string `json:"serviceAccountName,omitempty"`

	// Volumes available to all templates of the workflow.
	Volumes []corev1.Volume `json:"volumes,omitempty"`

	// Templates holds the entrypoint DAG plus one template per task.
	Templates []Template `json:"templates,omitempty"`
}

// Template is a single executable unit: either a DAG of tasks, a container
// invocation, or a cluster-resource action. Exactly one of DAG, Container
// or Resource is set.
type Template struct {
	// Name of the template, referenced by DAG tasks.
	Name string `json:"name,omitempty"`

	// Metadata applied to pods created from this template.
	Metadata *PodMetadata `json:"metadata,omitempty"`

	// DAG makes this template a task graph.
	DAG *DAGTemplate `json:"dag,omitempty"`

	// Container makes this template a pod running the given container.
	Container *corev1.Container `json:"container,omitempty"`

	// Resource makes this template a cluster-resource action.
	Resource *ResourceAction `json:"resource,omitempty"`

	// Outputs declares values the template exports after completion.
	Outputs *Outputs `json:"outputs,omitempty"`

	// NodeSelector constrains pod placement for this template.
	NodeSelector map[string]string `json:"nodeSelector,omitempty"`

	// Tolerations applied to pods of this template.
	Tolerations []corev1.Toleration `json:"tolerations,omitempty"`

	// SecurityContext applied to pods of this template.
	SecurityContext *corev1.PodSecurityContext `json:"securityContext,omitempty"`

	// Volumes visible only to this template's pod.
	Volumes []corev1.Volume `json:"volumes,omitempty"`
}

// PodMetadata carries labels/annotations for pods created by a template.
type PodMetadata struct {
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// DAGTemplate is the task-graph body of a DAG template.
type DAGTemplate struct {
	Tasks []DAGTask `json:"tasks,omitempty"`
}

// DAGTask is one node of the emitted task graph. Ordering constraints are
// expressed through a Depends expression; the orchestrator forbids mixing
// expressions with plain dependency lists inside one DAG template, so only
// the expression form is modeled.
type DAGTask struct {
	// Name of the task within the DAG.
	Name string `json:"name,omitempty"`

	// Template executed by this task.
	Template string `json:"template,omitempty"`

	// Depends is a boolean expression over predecessor results. A bare
	// task name requires that task to have succeeded.
	Depends string `json:"depends,omitempty"`
}

// ResourceAction creates or deletes a cluster resource from a manifest.
type ResourceAction struct {
	// Action is "create" or "delete".
	Action string `json:"action,omitempty"`

	// Manifest is the full YAML manifest of the resource acted on.
	Manifest string `json:"manifest,omitempty"`
}

// Outputs declares template outputs.
type Outputs struct {
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Parameter is a single named output value.
type Parameter struct {
	// Name of the parameter.
	Name string `json:"name,omitempty"`

	// GlobalName additionally exports the parameter workflow-wide, so other
	// templates can reference it without a direct task dependency edge.
	GlobalName string `json:"globalName,omitempty"`

	// ValueFrom tells the orchestrator where the value is produced.
	ValueFrom *ValueFrom `json:"valueFrom,omitempty"`
}

// ValueFrom locates a parameter value inside the finished task pod.
type ValueFrom struct {
	// Path of a file in the task container holding the value.
	Path string `json:"path,omitempty"`
}
