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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
	"github.com/pipeflow-run/pipeflow/pkg/metadata"
)

func resolveAll(t *testing.T, pipeline *v1alpha1.Pipeline, cfg *v1alpha1.CompileConfig) map[string]ResolvedResources {
	t.Helper()
	resolved, err := newResourceResolver().Resolve(pipeline, cfg)
	require.NoError(t, err)
	return resolved
}

func TestBuildDefaultRunnerInvocation(t *testing.T) {
	cfg := testConfig()
	pipeline := testPipeline("orders", testNode("extract"))

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), VolumeLifecyclePlan{}, ExperimentContext{})
	require.NoError(t, err)

	task := nodes["extract"].Task
	assert.Equal(t, cfg.Image, task.Image)
	assert.Equal(t, []string{"kedro"}, task.Command)
	assert.Equal(t, []string{"run", "-e", "local", "--pipeline", "__default__", "--node", "extract"}, task.Args)
}

func TestBuildAppliesImagePullPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ImagePullPolicy = corev1.PullAlways
	pipeline := testPipeline("orders", testNode("extract"))

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), VolumeLifecyclePlan{}, ExperimentContext{})
	require.NoError(t, err)

	assert.Equal(t, corev1.PullAlways, nodes["extract"].Task.ImagePullPolicy)
}

func TestBuildRunnerArgsUseConfiguredEnvironment(t *testing.T) {
	cfg := testConfig()
	cfg.Environment = "staging"
	cfg.PipelineName = "reporting"
	pipeline := testPipeline("orders", testNode("extract"))

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), VolumeLifecyclePlan{}, ExperimentContext{})
	require.NoError(t, err)

	assert.Equal(t, []string{"run", "-e", "staging", "--pipeline", "reporting", "--node", "extract"},
		nodes["extract"].Task.Args)
}

func TestBuildExplicitTaskWinsOverRunner(t *testing.T) {
	cfg := testConfig()
	pipeline := testPipeline("orders", testNode("score"))
	pipeline.Spec.Nodes[0].Task = &v1alpha1.NodeTask{
		Image:   "registry.example.com/scoring:2.0",
		Command: []string{"python"},
		Args:    []string{"-m", "scoring.batch"},
	}

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), VolumeLifecyclePlan{}, ExperimentContext{})
	require.NoError(t, err)

	task := nodes["score"].Task
	assert.Equal(t, "registry.example.com/scoring:2.0", task.Image)
	assert.Equal(t, []string{"python"}, task.Command)
	assert.Equal(t, []string{"-m", "scoring.batch"}, task.Args)
}

func TestBuildMountsSharedVolume(t *testing.T) {
	cfg := testConfig()
	pipeline := testPipeline("orders", testNode("extract"))
	volume := VolumeLifecyclePlan{
		Enabled:   true,
		ClaimName: "orders-storage-ab12c",
		MountPath: DefaultVolumeMountPath,
		Owner:     42,
	}

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), volume, ExperimentContext{})
	require.NoError(t, err)

	task := nodes["extract"].Task
	require.Len(t, task.VolumeMounts, 1)
	assert.Equal(t, SharedVolumeName, task.VolumeMounts[0].Name)
	assert.Equal(t, DefaultVolumeMountPath, task.VolumeMounts[0].MountPath)
	require.Len(t, task.Volumes, 1)
	assert.Equal(t, "orders-storage-ab12c", task.Volumes[0].PersistentVolumeClaim.ClaimName)
	require.NotNil(t, task.FSGroup)
	assert.Equal(t, int64(42), *task.FSGroup)
}

func TestBuildInjectsRunID(t *testing.T) {
	cfg := testConfig()
	pipeline := testPipeline("orders", testNode("extract"))
	tracking := ExperimentContext{
		Enabled:    true,
		RunIDValue: "{{workflow.outputs.parameters.mlflow-run-id}}",
	}

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), VolumeLifecyclePlan{}, tracking)
	require.NoError(t, err)

	env := nodes["extract"].Task.Env
	require.Len(t, env, 1)
	assert.Equal(t, RunIDEnvVar, env[0].Name)
	assert.Equal(t, tracking.RunIDValue, env[0].Value)
}

func TestBuildBindsSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Resources = &v1alpha1.ResourceSpec{
		Secrets: []v1alpha1.SecretRef{
			{Name: "db-creds", Key: "password", EnvVar: "DB_PASSWORD"},
			{Name: "service-account", MountPath: "/var/secrets/sa"},
		},
	}
	pipeline := testPipeline("orders", testNode("extract"))

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), VolumeLifecyclePlan{}, ExperimentContext{})
	require.NoError(t, err)

	task := nodes["extract"].Task
	require.Len(t, task.Env, 1)
	assert.Equal(t, "DB_PASSWORD", task.Env[0].Name)
	require.NotNil(t, task.Env[0].ValueFrom)
	assert.Equal(t, "db-creds", task.Env[0].ValueFrom.SecretKeyRef.Name)
	assert.Equal(t, "password", task.Env[0].ValueFrom.SecretKeyRef.Key)

	require.Len(t, task.VolumeMounts, 1)
	assert.Equal(t, "secret-service-account", task.VolumeMounts[0].Name)
	assert.Equal(t, "/var/secrets/sa", task.VolumeMounts[0].MountPath)
	assert.True(t, task.VolumeMounts[0].ReadOnly)
	require.Len(t, task.Volumes, 1)
	assert.Equal(t, "service-account", task.Volumes[0].Secret.SecretName)
}

func TestBuildTaskLabels(t *testing.T) {
	cfg := testConfig()
	cfg.Resources = &v1alpha1.ResourceSpec{
		Labels: map[string]string{"team": "data"},
	}
	pipeline := testPipeline("orders", testNode("extract"))

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), VolumeLifecyclePlan{}, ExperimentContext{})
	require.NoError(t, err)

	labels := nodes["extract"].Task.Labels
	assert.Equal(t, "orders", labels[metadata.PipelineLabel])
	assert.Equal(t, "extract", labels[metadata.NodeIDLabel])
	assert.Equal(t, "data", labels["team"])
	assert.Equal(t, "true", labels[metadata.OwnedLabel])
}

func TestBuildNodeMeta(t *testing.T) {
	cfg := testConfig()
	pipeline := testPipeline("orders",
		testNode("extract"),
		testNode("transform", "extract"),
	)

	nodes, err := newBuilder().Build(pipeline, cfg, resolveAll(t, pipeline, cfg), VolumeLifecyclePlan{}, ExperimentContext{})
	require.NoError(t, err)

	meta := nodes["transform"].Meta
	assert.Equal(t, "transform", meta.ID)
	assert.Equal(t, 1, meta.Index)
	assert.Equal(t, NodeTypeTask, meta.Type)
	assert.Equal(t, TriggerAllSucceeded, meta.Trigger)
	assert.Equal(t, []string{"extract"}, meta.Dependencies)
}
