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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
)

func volumeConfig() *v1alpha1.CompileConfig {
	cfg := testConfig()
	cfg.Volume = v1alpha1.VolumeConfig{Enabled: true}
	return cfg
}

func trackingConfig() *v1alpha1.CompileConfig {
	cfg := testConfig()
	cfg.Tracking = v1alpha1.TrackingConfig{
		Enabled:     true,
		TrackingURI: "http://mlflow.example.com",
	}
	return cfg
}

func nodeIDs(g *CompiledGraph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	return ids
}

func TestCompilePlainPipeline(t *testing.T) {
	pipeline := testPipeline("orders",
		testNode("extract"),
		testNode("transform", "extract"),
		testNode("load", "transform"),
	)

	cfg := testConfig()
	cfg.ServiceAccountName = "pipeline-runner"
	g, err := NewCompiler().Compile(pipeline, cfg)
	require.NoError(t, err)

	// No lifecycle features enabled: the graph is exactly the input.
	assert.ElementsMatch(t, []string{"extract", "transform", "load"}, nodeIDs(g))
	assert.Equal(t, []string{"extract", "transform", "load"}, g.TopologicalOrder)
	assert.Equal(t, "orders", g.PipelineName)
	assert.Equal(t, "pipeline-runner", g.ServiceAccountName)
	assert.False(t, g.Volume.Enabled)
	assert.False(t, g.Tracking.Enabled)
}

func TestCompileWithVolumeWrapsPipeline(t *testing.T) {
	pipeline := testPipeline("orders",
		testNode("a"),
		testNode("b", "a"),
		testNode("c", "b"),
	)

	g, err := NewCompiler().Compile(pipeline, volumeConfig())
	require.NoError(t, err)

	// A linear three-node pipeline grows by exactly the two storage
	// lifecycle nodes; no seeding was configured.
	assert.ElementsMatch(t,
		[]string{VolumeInitNodeID, "a", "b", "c", VolumeTeardownNodeID},
		nodeIDs(g))
	assert.Equal(t,
		[]string{VolumeInitNodeID, "a", "b", "c", VolumeTeardownNodeID},
		g.TopologicalOrder)

	// The root gained the provisioning dependency; interior edges are
	// untouched.
	assert.Equal(t, []string{VolumeInitNodeID}, g.Nodes["a"].Meta.Dependencies)
	assert.Equal(t, []string{"a"}, g.Nodes["b"].Meta.Dependencies)
	assert.Equal(t, []string{"b"}, g.Nodes["c"].Meta.Dependencies)

	teardown := g.Nodes[VolumeTeardownNodeID]
	assert.Equal(t, TriggerAllFinished, teardown.Meta.Trigger)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, teardown.Meta.Dependencies)
	assert.Equal(t, NodeTypeVolumeTeardown, teardown.Meta.Type)

	init := g.Nodes[VolumeInitNodeID]
	assert.Equal(t, TriggerAllSucceeded, init.Meta.Trigger)
	assert.Empty(t, init.Meta.Dependencies)
	assert.Equal(t, "create", init.Task.ResourceAction)
}

func TestCompileWithTrackingFrontsEveryTask(t *testing.T) {
	pipeline := testPipeline("orders",
		testNode("a"),
		testNode("b"),
		testNode("c", "a", "b"),
	)

	g, err := NewCompiler().Compile(pipeline, trackingConfig())
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{TrackingInitNodeID, "a", "b", "c"},
		nodeIDs(g))
	assert.Equal(t, TrackingInitNodeID, g.TopologicalOrder[0])

	// Every original node, not just the roots, depends on the init node.
	assert.Contains(t, g.Nodes["a"].Meta.Dependencies, TrackingInitNodeID)
	assert.Contains(t, g.Nodes["b"].Meta.Dependencies, TrackingInitNodeID)
	assert.Contains(t, g.Nodes["c"].Meta.Dependencies, TrackingInitNodeID)

	// Tasks consume the exported run ID through their environment.
	for _, id := range []string{"a", "b", "c"} {
		env := g.Nodes[id].Task.Env
		require.Len(t, env, 1)
		assert.Equal(t, RunIDEnvVar, env[0].Name)
		assert.Equal(t, g.Tracking.RunIDValue, env[0].Value)
	}
}

func TestCompileWithVolumeAndTrackingAndSeed(t *testing.T) {
	cfg := trackingConfig()
	cfg.Volume = v1alpha1.VolumeConfig{
		Enabled: true,
		Seed:    &v1alpha1.VolumeSeed{SourcePath: "/datasets/orders"},
	}
	pipeline := testPipeline("orders",
		testNode("a"),
		testNode("b", "a"),
	)

	g, err := NewCompiler().Compile(pipeline, cfg)
	require.NoError(t, err)

	require.Len(t, g.TopologicalOrder, 6)
	assert.Equal(t,
		[]string{TrackingInitNodeID, VolumeInitNodeID, VolumeSeedNodeID, "a", "b", VolumeTeardownNodeID},
		g.TopologicalOrder)

	// Provisioning runs after experiment-init, seeding after provisioning,
	// and the original root waits for the seeded volume.
	assert.Contains(t, g.Nodes[VolumeInitNodeID].Meta.Dependencies, TrackingInitNodeID)
	assert.Equal(t, []string{VolumeInitNodeID}, g.Nodes[VolumeSeedNodeID].Meta.Dependencies)
	assert.Contains(t, g.Nodes["a"].Meta.Dependencies, VolumeSeedNodeID)
	assert.NotContains(t, g.Nodes["b"].Meta.Dependencies, VolumeSeedNodeID)
}

func TestCompileRejectsMalformedSecretBeforeSynthesis(t *testing.T) {
	cfg := volumeConfig()
	pipeline := testPipeline("orders", testNode("a"))
	pipeline.Spec.Nodes[0].Resources = &v1alpha1.ResourceSpec{
		Secrets: []v1alpha1.SecretRef{{Name: "db-creds"}},
	}

	_, err := NewCompiler().Compile(pipeline, cfg)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.False(t, IsGraph(err))
}

func TestCompileRejectsCyclicPipeline(t *testing.T) {
	pipeline := testPipeline("orders",
		testNode("a", "b"),
		testNode("b", "a"),
	)

	_, err := NewCompiler().Compile(pipeline, testConfig())
	require.Error(t, err)
	assert.True(t, IsGraph(err))
}

type failingValidator struct{ err error }

func (v *failingValidator) Validate(*v1alpha1.Pipeline, *v1alpha1.CompileConfig) error {
	return v.err
}

func TestNewCompilerHonorsStageOptions(t *testing.T) {
	want := errors.New("stage injected")
	c := NewCompiler(WithValidator(&failingValidator{err: want}))

	_, err := c.Compile(testPipeline("orders", testNode("a")), testConfig())
	assert.ErrorIs(t, err, want)
}

func TestCompiledGraphTaskNodes(t *testing.T) {
	pipeline := testPipeline("orders",
		testNode("a"),
		testNode("b", "a"),
	)

	g, err := NewCompiler().Compile(pipeline, volumeConfig())
	require.NoError(t, err)

	// TaskNodes filters the lifecycle nodes out, preserving order.
	assert.Equal(t, []string{"a", "b"}, g.TaskNodes())
}
