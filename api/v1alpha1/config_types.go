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
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DefaultStartupTimeout is applied when no startup timeout is configured,
// at the pipeline level or per node.
const DefaultStartupTimeout = 600 // seconds

// CompileConfig is the plugin configuration consumed by one compilation
// invocation. It is typically loaded from a YAML file; the CLI may override
// individual fields (the image override takes precedence over the file).
type CompileConfig struct {
	metav1.TypeMeta `json:",inline"`

	// Image is the container image every task runs unless overridden per
	// node. Required.
	Image string `json:"image,omitempty"`

	// ImagePullPolicy is applied to every emitted task container.
	ImagePullPolicy corev1.PullPolicy `json:"imagePullPolicy,omitempty"`

	// Namespace is the cluster namespace the workflow is compiled for.
	Namespace string `json:"namespace,omitempty"`

	// ServiceAccountName runs all workflow pods under the given service
	// account. The volume lifecycle nodes create and delete claims, so the
	// account needs the matching cluster permissions.
	ServiceAccountName string `json:"serviceAccountName,omitempty"`

	// Environment is the runner configuration environment passed to each
	// task (the `-e` option of the pipeline runner).
	Environment string `json:"environment,omitempty"`

	// PipelineName selects which registered pipeline the runner executes.
	// Defaults to "__default__".
	PipelineName string `json:"pipelineName,omitempty"`

	// StartupTimeoutSeconds bounds how long a task pod may take to start
	// before it is failed. Defaults to 600.
	StartupTimeoutSeconds *int64 `json:"startupTimeoutSeconds,omitempty"`

	// Resources is the pipeline-wide resource default. Per-node overrides
	// are merged over it field by field.
	Resources *ResourceSpec `json:"resources,omitempty"`

	// Volume configures the shared storage lifecycle.
	Volume VolumeConfig `json:"volume,omitempty"`

	// Tracking configures experiment-tracking correlation.
	Tracking TrackingConfig `json:"tracking,omitempty"`

	// Destination is where the compiled artifact is written: a local
	// filesystem path or an s3://bucket/key object-storage URI.
	Destination string `json:"destination,omitempty"`
}

// ResourceSpec describes the compute shape of a task: resource bounds,
// placement constraints and secret injection. A nil pointer field means
// "inherit" when the spec is used as a per-node override.
type ResourceSpec struct {
	// CPU request/limit for the task container.
	CPU *ResourceBounds `json:"cpu,omitempty"`

	// Memory request/limit for the task container.
	Memory *ResourceBounds `json:"memory,omitempty"`

	// NodeSelector constrains which cluster nodes the task may run on.
	NodeSelector map[string]string `json:"nodeSelector,omitempty"`

	// Labels are added to the task pod metadata.
	Labels map[string]string `json:"labels,omitempty"`

	// Annotations are added to the task pod metadata.
	Annotations map[string]string `json:"annotations,omitempty"`

	// Tolerations are applied to the task pod.
	Tolerations []corev1.Toleration `json:"tolerations,omitempty"`

	// Secrets bind cluster secrets into the task, as environment variables
	// or file mounts.
	Secrets []SecretRef `json:"secrets,omitempty"`

	// StartupTimeout overrides the pipeline-wide startup timeout.
	StartupTimeout *metav1.Duration `json:"startupTimeout,omitempty"`
}

// ResourceBounds is a request/limit pair for one resource dimension.
type ResourceBounds struct {
	Request *resource.Quantity `json:"request,omitempty"`
	Limit   *resource.Quantity `json:"limit,omitempty"`
}

// SecretRef binds one cluster secret into a task. Exactly one of EnvVar or
// MountPath must be set: EnvVar exposes a single key as an environment
// variable, MountPath mounts the whole secret as files.
type SecretRef struct {
	// Name is the secret name in the task namespace.
	Name string `json:"name,omitempty"`

	// Key selects a single entry of the secret for env injection.
	Key string `json:"key,omitempty"`

	// EnvVar is the environment variable the selected key is exposed as.
	EnvVar string `json:"envVar,omitempty"`

	// MountPath is the directory the secret is mounted under.
	MountPath string `json:"mountPath,omitempty"`
}

// VolumeConfig configures the shared temporary volume threaded through a
// pipeline run. When disabled, tasks exchange data only through the
// orchestrator's own artifact passing.
type VolumeConfig struct {
	// Enabled turns shared-storage synthesis on.
	Enabled bool `json:"enabled,omitempty"`

	// Size of the provisioned claim. Defaults to 1Gi.
	Size *resource.Quantity `json:"size,omitempty"`

	// AccessModes of the provisioned claim. Defaults to ReadWriteMany.
	AccessModes []corev1.PersistentVolumeAccessMode `json:"accessModes,omitempty"`

	// StorageClassName selects the storage class of the claim.
	StorageClassName *string `json:"storageClassName,omitempty"`

	// Owner is the fsGroup applied to pods mounting the volume.
	Owner int64 `json:"owner,omitempty"`

	// MountPath is where the volume is mounted in every task container.
	// Defaults to /home/kedro/data.
	MountPath string `json:"mountPath,omitempty"`

	// Seed optionally seeds the fresh volume with a known dataset layout
	// copied out of a reference image before any task runs.
	Seed *VolumeSeed `json:"seed,omitempty"`
}

// VolumeSeed describes how a freshly provisioned volume is populated.
type VolumeSeed struct {
	// Image holding the seed data. Defaults to the pipeline image.
	Image string `json:"image,omitempty"`

	// SourcePath is the directory inside Image copied into the volume.
	// Defaults to the volume mount path.
	SourcePath string `json:"sourcePath,omitempty"`
}

// TrackingConfig configures experiment-tracking correlation. When enabled
// the compiler synthesizes an init node that ensures the experiment exists,
// opens a run, and publishes the run ID to every task.
type TrackingConfig struct {
	// Enabled turns tracking synthesis on.
	Enabled bool `json:"enabled,omitempty"`

	// ExperimentName is the experiment all runs of this pipeline report to.
	// Defaults to the pipeline name.
	ExperimentName string `json:"experimentName,omitempty"`

	// TrackingURI is the tracking server endpoint the init task contacts.
	TrackingURI string `json:"trackingUri,omitempty"`

	// Image the init task runs with. Defaults to the pipeline image.
	Image string `json:"image,omitempty"`
}
