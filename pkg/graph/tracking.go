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
	corev1 "k8s.io/api/core/v1"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
)

const (
	// RunIDEnvVar is the environment variable every task reads its run
	// identifier from.
	RunIDEnvVar = "MLFLOW_RUN_ID"

	// RunIDParameterName is the workflow-global output parameter the init
	// node exports the run identifier under.
	RunIDParameterName = "mlflow-run-id"

	// RunIDOutputPath is the in-container file the init task writes the
	// run identifier to.
	RunIDOutputPath = "/tmp/pipeflow/run_id"
)

// ExperimentContext is the experiment-tracking decision for one
// compilation. When disabled every other field is zero and the compiler
// skips tracking synthesis entirely.
type ExperimentContext struct {
	// Enabled reports whether tracking correlation is synthesized.
	Enabled bool

	// ExperimentName is the experiment all tasks report to.
	ExperimentName string

	// TrackingURI is the tracking server the init task contacts.
	TrackingURI string

	// RunIDValue is the placeholder the orchestrator resolves to the run
	// identifier at execution time. It is injected into every task as the
	// RunIDEnvVar environment variable.
	RunIDValue string

	// InitTask is the execution spec of the synthesized init node. Its
	// command performs an idempotent ensure-experiment plus run creation:
	// "already exists" is success, only transient failures fail the node.
	// A failed init halts the whole pipeline before any real work runs.
	InitTask *TaskSpec
}

type trackingPlanner struct{}

func newTrackingPlanner() TrackingPlanner { return &trackingPlanner{} }

// Plan produces the ExperimentContext for a compilation.
func (p *trackingPlanner) Plan(pipeline *v1alpha1.Pipeline, cfg *v1alpha1.CompileConfig) (ExperimentContext, error) {
	if !cfg.Tracking.Enabled {
		return ExperimentContext{}, nil
	}

	experiment := cfg.Tracking.ExperimentName
	if experiment == "" {
		experiment = pipeline.Name
	}
	if cfg.Tracking.TrackingURI == "" {
		return ExperimentContext{}, configurationf("tracking", "tracking is enabled but trackingUri is empty")
	}

	image := cfg.Tracking.Image
	if image == "" {
		image = cfg.Image
	}

	ctx := ExperimentContext{
		Enabled:        true,
		ExperimentName: experiment,
		TrackingURI:    cfg.Tracking.TrackingURI,
		RunIDValue:     "{{workflow.outputs.parameters." + RunIDParameterName + "}}",
	}
	ctx.InitTask = &TaskSpec{
		Image:           image,
		ImagePullPolicy: cfg.ImagePullPolicy,
		Command:         []string{"pipeflow"},
		Args: []string{
			"experiment", "init",
			"--experiment-name", experiment,
			"--run-name", pipeline.Name,
			"--output", RunIDOutputPath,
		},
		Env: []corev1.EnvVar{
			{Name: "MLFLOW_TRACKING_URI", Value: ctx.TrackingURI},
		},
		RunIDOutputPath: RunIDOutputPath,
	}
	return ctx, nil
}
