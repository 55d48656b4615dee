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

package emitter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
	"github.com/pipeflow-run/pipeflow/pkg/graph"
	"github.com/pipeflow-run/pipeflow/pkg/metadata"
)

func compiledGraph(t *testing.T, cfg *v1alpha1.CompileConfig) *graph.CompiledGraph {
	t.Helper()
	pipeline := &v1alpha1.Pipeline{
		ObjectMeta: metav1.ObjectMeta{Name: "orders"},
		Spec: v1alpha1.PipelineSpec{
			Nodes: []*v1alpha1.PipelineNode{
				{Name: "extract"},
				{Name: "transform", Dependencies: []string{"extract"}},
			},
		},
	}
	g, err := graph.NewCompiler().Compile(pipeline, cfg)
	require.NoError(t, err)
	return g
}

func fullConfig() *v1alpha1.CompileConfig {
	return &v1alpha1.CompileConfig{
		Image:              "registry.example.com/pipelines/orders:1.2.3",
		ImagePullPolicy:    corev1.PullAlways,
		Namespace:          "pipelines",
		ServiceAccountName: "pipeline-runner",
		Volume:             v1alpha1.VolumeConfig{Enabled: true},
		Tracking: v1alpha1.TrackingConfig{
			Enabled:     true,
			TrackingURI: "http://mlflow.example.com",
		},
	}
}

func templateByName(t *testing.T, wf *v1alpha1.Workflow, name string) v1alpha1.Template {
	t.Helper()
	for _, tmpl := range wf.Spec.Templates {
		if tmpl.Name == name {
			return tmpl
		}
	}
	t.Fatalf("template %q not found", name)
	return v1alpha1.Template{}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New("toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown artifact format")
}

func TestRenderWorkflowShape(t *testing.T) {
	g := compiledGraph(t, fullConfig())

	wf, err := Render(g)
	require.NoError(t, err)

	assert.Equal(t, v1alpha1.WorkflowAPIVersion, wf.APIVersion)
	assert.Equal(t, v1alpha1.WorkflowKind, wf.Kind)
	assert.Equal(t, "orders-", wf.GenerateName)
	assert.Equal(t, "pipelines", wf.Namespace)
	assert.Equal(t, "true", wf.Labels[metadata.OwnedLabel])
	assert.Equal(t, "orders", wf.Labels[metadata.PipelineLabel])
	assert.Equal(t, "pipeline", wf.Spec.Entrypoint)
	assert.Equal(t, "pipeline-runner", wf.Spec.ServiceAccountName)

	// One DAG template plus one template per node.
	require.Len(t, wf.Spec.Templates, 1+len(g.TopologicalOrder))

	dagTemplate := wf.Spec.Templates[0]
	assert.Equal(t, "pipeline", dagTemplate.Name)
	require.NotNil(t, dagTemplate.DAG)
	require.Len(t, dagTemplate.DAG.Tasks, len(g.TopologicalOrder))
}

func TestRenderTaskTemplate(t *testing.T) {
	g := compiledGraph(t, fullConfig())

	wf, err := Render(g)
	require.NoError(t, err)

	tmpl := templateByName(t, wf, "extract")
	require.NotNil(t, tmpl.Container)
	assert.Equal(t, "main", tmpl.Container.Name)
	assert.Equal(t, "registry.example.com/pipelines/orders:1.2.3", tmpl.Container.Image)
	assert.Equal(t, corev1.PullAlways, tmpl.Container.ImagePullPolicy)
	assert.Equal(t, []string{"kedro"}, tmpl.Container.Command)

	// Shared volume, fsGroup and the startup bound all flow through.
	require.Len(t, tmpl.Volumes, 1)
	require.NotNil(t, tmpl.SecurityContext)
	require.NotNil(t, tmpl.Metadata)
	assert.Equal(t, "600", tmpl.Metadata.Annotations[metadata.StartupTimeoutAnnotation])
}

func TestRenderStartupTimeoutIsMetadataOnly(t *testing.T) {
	g := compiledGraph(t, fullConfig())

	em, err := New(FormatYAML)
	require.NoError(t, err)
	data, err := em.Marshal(g)
	require.NoError(t, err)

	// The startup bound must not surface as a pod runtime deadline; that
	// would kill healthy tasks running longer than the startup window.
	assert.NotContains(t, string(data), "activeDeadlineSeconds")
	assert.Contains(t, string(data), metadata.StartupTimeoutAnnotation+`: "600"`)
}

func TestRenderLifecycleTemplates(t *testing.T) {
	g := compiledGraph(t, fullConfig())

	wf, err := Render(g)
	require.NoError(t, err)

	initTmpl := templateByName(t, wf, graph.VolumeInitNodeID)
	require.NotNil(t, initTmpl.Resource)
	assert.Equal(t, "create", initTmpl.Resource.Action)
	assert.Contains(t, initTmpl.Resource.Manifest, "PersistentVolumeClaim")
	assert.Nil(t, initTmpl.Container)

	teardownTmpl := templateByName(t, wf, graph.VolumeTeardownNodeID)
	require.NotNil(t, teardownTmpl.Resource)
	assert.Equal(t, "delete", teardownTmpl.Resource.Action)

	trackingTmpl := templateByName(t, wf, graph.TrackingInitNodeID)
	require.NotNil(t, trackingTmpl.Container)
	require.NotNil(t, trackingTmpl.Outputs)
	require.Len(t, trackingTmpl.Outputs.Parameters, 1)
	param := trackingTmpl.Outputs.Parameters[0]
	assert.Equal(t, "run-id", param.Name)
	assert.Equal(t, graph.RunIDParameterName, param.GlobalName)
	assert.Equal(t, graph.RunIDOutputPath, param.ValueFrom.Path)
}

func TestRenderDAGTaskTriggers(t *testing.T) {
	g := compiledGraph(t, fullConfig())

	wf, err := Render(g)
	require.NoError(t, err)

	var teardown, transform *v1alpha1.DAGTask
	for i := range wf.Spec.Templates[0].DAG.Tasks {
		task := &wf.Spec.Templates[0].DAG.Tasks[i]
		switch task.Name {
		case graph.VolumeTeardownNodeID:
			teardown = task
		case "transform":
			transform = task
		}
	}

	// Ordinary tasks require their predecessors to have succeeded: a bare
	// task name in a depends expression means exactly that.
	require.NotNil(t, transform)
	assert.Equal(t, "extract", transform.Depends)

	// The teardown runs regardless of task results, including tasks the
	// orchestrator omitted because an upstream failed.
	require.NotNil(t, teardown)
	assert.Contains(t, teardown.Depends,
		"(extract.Succeeded || extract.Failed || extract.Errored || extract.Skipped || extract.Omitted)")
	assert.Contains(t, teardown.Depends, " && ")
}

func TestDagTaskDependsExpression(t *testing.T) {
	ordinary := dagTask(&graph.Node{
		Meta: graph.NodeMeta{
			ID:           "load",
			Trigger:      graph.TriggerAllSucceeded,
			Dependencies: []string{"extract", "transform"},
		},
	})
	assert.Equal(t, "extract && transform", ordinary.Depends)

	cleanup := dagTask(&graph.Node{
		Meta: graph.NodeMeta{
			ID:           "cleanup",
			Trigger:      graph.TriggerAllFinished,
			Dependencies: []string{"a", "b"},
		},
	})
	assert.Equal(t,
		"(a.Succeeded || a.Failed || a.Errored || a.Skipped || a.Omitted)"+
			" && (b.Succeeded || b.Failed || b.Errored || b.Skipped || b.Omitted)",
		cleanup.Depends)
}

func TestMarshalFormats(t *testing.T) {
	g := compiledGraph(t, fullConfig())

	yamlEmitter, err := New(FormatYAML)
	require.NoError(t, err)
	data, err := yamlEmitter.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), "apiVersion: argoproj.io/v1alpha1")
	assert.Contains(t, string(data), "kind: Workflow")
	// The DAG uses depends expressions exclusively; mixing in dependency
	// lists makes the orchestrator reject the whole template.
	assert.Contains(t, string(data), "depends:")
	assert.NotContains(t, string(data), "dependencies:")

	jsonEmitter, err := New(FormatJSON)
	require.NoError(t, err)
	data, err = jsonEmitter.Marshal(g)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Workflow", decoded["kind"])
}
