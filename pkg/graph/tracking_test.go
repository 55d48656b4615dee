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
)

func TestTrackingPlanDisabled(t *testing.T) {
	ctx, err := newTrackingPlanner().Plan(testPipeline("orders", testNode("a")), testConfig())
	require.NoError(t, err)
	assert.False(t, ctx.Enabled)
	assert.Nil(t, ctx.InitTask)
}

func TestTrackingPlanRequiresURI(t *testing.T) {
	cfg := testConfig()
	cfg.Tracking = v1alpha1.TrackingConfig{Enabled: true}

	_, err := newTrackingPlanner().Plan(testPipeline("orders", testNode("a")), cfg)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), "trackingUri")
}

func TestTrackingPlanExperimentDefaultsToPipelineName(t *testing.T) {
	cfg := testConfig()
	cfg.Tracking = v1alpha1.TrackingConfig{
		Enabled:     true,
		TrackingURI: "http://mlflow.example.com",
	}

	ctx, err := newTrackingPlanner().Plan(testPipeline("orders", testNode("a")), cfg)
	require.NoError(t, err)
	assert.Equal(t, "orders", ctx.ExperimentName)
}

func TestTrackingPlanInitTask(t *testing.T) {
	cfg := testConfig()
	cfg.ImagePullPolicy = corev1.PullAlways
	cfg.Tracking = v1alpha1.TrackingConfig{
		Enabled:        true,
		ExperimentName: "orders-daily",
		TrackingURI:    "http://mlflow.example.com",
		Image:          "registry.example.com/pipeflow:latest",
	}

	ctx, err := newTrackingPlanner().Plan(testPipeline("orders", testNode("a")), cfg)
	require.NoError(t, err)

	assert.True(t, ctx.Enabled)
	assert.Equal(t, "{{workflow.outputs.parameters.mlflow-run-id}}", ctx.RunIDValue)

	task := ctx.InitTask
	require.NotNil(t, task)
	assert.Equal(t, "registry.example.com/pipeflow:latest", task.Image)
	assert.Equal(t, corev1.PullAlways, task.ImagePullPolicy)
	assert.Equal(t, []string{"pipeflow"}, task.Command)
	assert.Equal(t, []string{
		"experiment", "init",
		"--experiment-name", "orders-daily",
		"--run-name", "orders",
		"--output", RunIDOutputPath,
	}, task.Args)
	assert.Equal(t, RunIDOutputPath, task.RunIDOutputPath)
	require.Len(t, task.Env, 1)
	assert.Equal(t, "MLFLOW_TRACKING_URI", task.Env[0].Name)
	assert.Equal(t, "http://mlflow.example.com", task.Env[0].Value)
}

func TestTrackingPlanImageDefaultsToTaskImage(t *testing.T) {
	cfg := testConfig()
	cfg.Tracking = v1alpha1.TrackingConfig{
		Enabled:     true,
		TrackingURI: "http://mlflow.example.com",
	}

	ctx, err := newTrackingPlanner().Plan(testPipeline("orders", testNode("a")), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Image, ctx.InitTask.Image)
}
