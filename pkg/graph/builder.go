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

	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
	"github.com/pipeflow-run/pipeflow/pkg/metadata"
)

type builder struct{}

func newBuilder() Builder { return &builder{} }

// Build produces the execution task spec for every original pipeline node:
// container invocation, effective resources, shared-volume mount, run-ID
// injection, placement attributes and secret bindings.
func (b *builder) Build(
	pipeline *v1alpha1.Pipeline,
	cfg *v1alpha1.CompileConfig,
	resources map[string]ResolvedResources,
	volume VolumeLifecyclePlan,
	tracking ExperimentContext,
) (map[string]*Node, error) {
	nodes := make(map[string]*Node, len(pipeline.Spec.Nodes))
	for i, pn := range pipeline.Spec.Nodes {
		rr, ok := resources[pn.Name]
		if !ok {
			return nil, graphErrf("builder", "no resolved resources for node %q", pn.Name)
		}

		task, err := b.taskSpec(pipeline, cfg, pn, rr, volume, tracking)
		if err != nil {
			return nil, err
		}

		nodes[pn.Name] = &Node{
			Meta: NodeMeta{
				ID:           pn.Name,
				Index:        i,
				Type:         NodeTypeTask,
				Dependencies: append([]string(nil), pn.Dependencies...),
				Trigger:      TriggerAllSucceeded,
			},
			Task: task,
		}
	}
	return nodes, nil
}

func (b *builder) taskSpec(
	pipeline *v1alpha1.Pipeline,
	cfg *v1alpha1.CompileConfig,
	pn *v1alpha1.PipelineNode,
	rr ResolvedResources,
	volume VolumeLifecyclePlan,
	tracking ExperimentContext,
) (*TaskSpec, error) {
	task := &TaskSpec{
		Image:           cfg.Image,
		ImagePullPolicy: cfg.ImagePullPolicy,
		Command:         runnerCommand(pn),
		Args:            runnerArgs(cfg, pn),
		Resources:       rr.Requirements,
		NodeSelector:    rr.NodeSelector,
		Labels:          taskLabels(pipeline, pn, rr),
		Annotations:     rr.Annotations,
		Tolerations:     rr.Tolerations,
		StartupTimeout:  rr.StartupTimeout,
	}
	if pn.Task != nil && pn.Task.Image != "" {
		task.Image = pn.Task.Image
	}

	if volume.Enabled {
		task.VolumeMounts = append(task.VolumeMounts, corev1.VolumeMount{
			Name:      SharedVolumeName,
			MountPath: volume.MountPath,
		})
		task.Volumes = append(task.Volumes, claimVolume(volume.ClaimName))
		fsGroup := volume.Owner
		task.FSGroup = &fsGroup
	}

	if tracking.Enabled {
		task.Env = append(task.Env, corev1.EnvVar{
			Name:  RunIDEnvVar,
			Value: tracking.RunIDValue,
		})
	}

	if err := b.bindSecrets(task, rr.Secrets); err != nil {
		return nil, configurationf("builder", "node %q: %v", pn.Name, err)
	}
	return task, nil
}

// runnerCommand returns the container entrypoint for a node. An explicit
// task reference wins; otherwise the pipeline runner is invoked.
func runnerCommand(pn *v1alpha1.PipelineNode) []string {
	if pn.Task != nil && len(pn.Task.Command) > 0 {
		return append([]string(nil), pn.Task.Command...)
	}
	return []string{"kedro"}
}

func runnerArgs(cfg *v1alpha1.CompileConfig, pn *v1alpha1.PipelineNode) []string {
	if pn.Task != nil && len(pn.Task.Args) > 0 {
		return append([]string(nil), pn.Task.Args...)
	}
	env := cfg.Environment
	if env == "" {
		env = "local"
	}
	pipelineName := cfg.PipelineName
	if pipelineName == "" {
		pipelineName = "__default__"
	}
	return []string{"run", "-e", env, "--pipeline", pipelineName, "--node", pn.Name}
}

func taskLabels(pipeline *v1alpha1.Pipeline, pn *v1alpha1.PipelineNode, rr ResolvedResources) map[string]string {
	labels := metadata.NewTaskLabeler(pipeline.Name, pn.Name).Labels()
	for k, v := range rr.Labels {
		labels[k] = v
	}
	return labels
}

// bindSecrets translates secret references into env vars and mounts.
// References were validated earlier; unexpected shapes here are bugs.
func (b *builder) bindSecrets(task *TaskSpec, secrets []v1alpha1.SecretRef) error {
	envRefs := lo.Filter(secrets, func(ref v1alpha1.SecretRef, _ int) bool { return ref.EnvVar != "" })
	mountRefs := lo.Filter(secrets, func(ref v1alpha1.SecretRef, _ int) bool { return ref.MountPath != "" })
	if len(envRefs)+len(mountRefs) != len(secrets) {
		return fmt.Errorf("secret reference without a target survived validation")
	}

	task.Env = append(task.Env, lo.Map(envRefs, func(ref v1alpha1.SecretRef, _ int) corev1.EnvVar {
		return corev1.EnvVar{
			Name: ref.EnvVar,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: ref.Name},
					Key:                  ref.Key,
				},
			},
		}
	})...)

	for _, ref := range mountRefs {
		volumeName := fmt.Sprintf("secret-%s", ref.Name)
		task.VolumeMounts = append(task.VolumeMounts, corev1.VolumeMount{
			Name:      volumeName,
			MountPath: ref.MountPath,
			ReadOnly:  true,
		})
		task.Volumes = append(task.Volumes, corev1.Volume{
			Name: volumeName,
			VolumeSource: corev1.VolumeSource{
				Secret: &corev1.SecretVolumeSource{SecretName: ref.Name},
			},
		})
	}
	return nil
}
