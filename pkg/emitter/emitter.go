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

// Package emitter renders a compiled orchestration graph into the
// orchestrator's workflow-definition document and writes it to a local or
// object-storage destination.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
	"github.com/pipeflow-run/pipeflow/pkg/graph"
	"github.com/pipeflow-run/pipeflow/pkg/metadata"
)

// Format selects the artifact encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// entrypointTemplate names the DAG template the orchestrator starts with.
const entrypointTemplate = "pipeline"

// Emitter renders and writes compiled graphs. It holds no per-compilation
// state; one Emitter can serve many compilations.
type Emitter struct {
	format Format
}

// New returns an Emitter producing the given format.
func New(format Format) (*Emitter, error) {
	switch format {
	case FormatYAML, FormatJSON:
		return &Emitter{format: format}, nil
	default:
		return nil, fmt.Errorf("unknown artifact format %q", format)
	}
}

// Emit renders the graph and writes the artifact to the destination. The
// graph is not mutated; a failed write surfaces as a DestinationError.
func (e *Emitter) Emit(ctx context.Context, g *graph.CompiledGraph, dest Destination) error {
	data, err := e.Marshal(g)
	if err != nil {
		return err
	}
	return dest.Write(ctx, data, e.ContentType())
}

// ContentType returns the media type of the emitted artifact.
func (e *Emitter) ContentType() string {
	if e.format == FormatJSON {
		return "application/json"
	}
	return "application/yaml"
}

// Marshal renders the graph into artifact bytes without writing them.
func (e *Emitter) Marshal(g *graph.CompiledGraph) ([]byte, error) {
	wf, err := Render(g)
	if err != nil {
		return nil, err
	}
	if e.format == FormatJSON {
		return json.MarshalIndent(wf, "", "  ")
	}
	return yaml.Marshal(wf)
}

// Render converts a CompiledGraph into the workflow-definition document.
func Render(g *graph.CompiledGraph) (*v1alpha1.Workflow, error) {
	wf := &v1alpha1.Workflow{
		TypeMeta: metav1.TypeMeta{
			APIVersion: v1alpha1.WorkflowAPIVersion,
			Kind:       v1alpha1.WorkflowKind,
		},
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: g.PipelineName + "-",
			Namespace:    g.Namespace,
			Labels:       metadata.NewWorkflowLabeler(g.PipelineName).Labels(),
		},
		Spec: v1alpha1.WorkflowSpec{
			Entrypoint:         entrypointTemplate,
			ServiceAccountName: g.ServiceAccountName,
		},
	}

	dagTemplate := v1alpha1.Template{
		Name: entrypointTemplate,
		DAG:  &v1alpha1.DAGTemplate{},
	}
	for _, id := range g.TopologicalOrder {
		dagTemplate.DAG.Tasks = append(dagTemplate.DAG.Tasks, dagTask(g.Nodes[id]))
	}
	wf.Spec.Templates = append(wf.Spec.Templates, dagTemplate)

	for _, id := range g.TopologicalOrder {
		tmpl, err := nodeTemplate(g, g.Nodes[id])
		if err != nil {
			return nil, err
		}
		wf.Spec.Templates = append(wf.Spec.Templates, tmpl)
	}
	return wf, nil
}

// dagTask renders the graph position of one node. Every task uses a
// depends expression because the orchestrator rejects a DAG template that
// mixes depends with plain dependency lists. A bare task name means the
// task succeeded; the run-regardless policy enumerates every terminal
// result, including Skipped and Omitted so that an upstream failure that
// omits intermediate tasks still fires the cleanup.
func dagTask(node *graph.Node) v1alpha1.DAGTask {
	task := v1alpha1.DAGTask{
		Name:     node.Meta.ID,
		Template: node.Meta.ID,
	}
	switch node.Meta.Trigger {
	case graph.TriggerAllFinished:
		task.Depends = strings.Join(lo.Map(node.Meta.Dependencies, func(dep string, _ int) string {
			return fmt.Sprintf("(%s.Succeeded || %s.Failed || %s.Errored || %s.Skipped || %s.Omitted)",
				dep, dep, dep, dep, dep)
		}), " && ")
	default:
		task.Depends = strings.Join(node.Meta.Dependencies, " && ")
	}
	return task
}

func nodeTemplate(g *graph.CompiledGraph, node *graph.Node) (v1alpha1.Template, error) {
	spec := node.Task
	if spec == nil {
		return v1alpha1.Template{}, fmt.Errorf("node %q has no task spec", node.Meta.ID)
	}

	tmpl := v1alpha1.Template{Name: node.Meta.ID}

	if spec.ResourceAction != "" {
		tmpl.Resource = &v1alpha1.ResourceAction{
			Action:   spec.ResourceAction,
			Manifest: spec.ResourceManifest,
		}
		return tmpl, nil
	}

	tmpl.Container = &corev1.Container{
		Name:            "main",
		Image:           spec.Image,
		ImagePullPolicy: spec.ImagePullPolicy,
		Command:         spec.Command,
		Args:            spec.Args,
		Env:             spec.Env,
		Resources:       spec.Resources,
		VolumeMounts:    spec.VolumeMounts,
	}
	tmpl.Volumes = spec.Volumes
	tmpl.NodeSelector = spec.NodeSelector
	tmpl.Tolerations = spec.Tolerations

	// The startup bound travels as pod metadata. Encoding it as a pod
	// deadline would cap the whole task runtime, not just its startup.
	annotations := maps.Clone(spec.Annotations)
	if spec.StartupTimeout.Duration > 0 {
		if annotations == nil {
			annotations = make(map[string]string, 1)
		}
		annotations[metadata.StartupTimeoutAnnotation] =
			strconv.FormatInt(int64(spec.StartupTimeout.Duration.Seconds()), 10)
	}
	if len(spec.Labels) > 0 || len(annotations) > 0 {
		tmpl.Metadata = &v1alpha1.PodMetadata{
			Labels:      spec.Labels,
			Annotations: annotations,
		}
	}
	if spec.FSGroup != nil {
		tmpl.SecurityContext = &corev1.PodSecurityContext{FSGroup: spec.FSGroup}
	}
	if spec.RunIDOutputPath != "" {
		tmpl.Outputs = &v1alpha1.Outputs{
			Parameters: []v1alpha1.Parameter{{
				Name:       "run-id",
				GlobalName: graph.RunIDParameterName,
				ValueFrom:  &v1alpha1.ValueFrom{Path: spec.RunIDOutputPath},
			}},
		}
	}
	return tmpl, nil
}
