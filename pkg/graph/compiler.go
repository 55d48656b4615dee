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
	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
)

// Validator enforces the compile-time input rules on the pipeline and its
// configuration. It runs before any planning or synthesis.
type Validator interface {
	// Validate returns a ConfigurationError or GraphError when the input
	// violates a rule that can be checked without building anything.
	Validate(*v1alpha1.Pipeline, *v1alpha1.CompileConfig) error
}

// ResourceResolver computes the effective resource shape of every node.
type ResourceResolver interface {
	// Resolve merges each node's override over the pipeline-wide default
	// and returns the effective ResolvedResources per node name.
	Resolve(*v1alpha1.Pipeline, *v1alpha1.CompileConfig) (map[string]ResolvedResources, error)
}

// VolumePlanner decides the shared-storage lifecycle for a compilation.
type VolumePlanner interface {
	// Plan returns the VolumeLifecyclePlan, including the provisioning and
	// teardown task specs when storage is enabled.
	Plan(*v1alpha1.Pipeline, *v1alpha1.CompileConfig) (VolumeLifecyclePlan, error)
}

// TrackingPlanner decides the experiment-correlation lifecycle.
type TrackingPlanner interface {
	// Plan returns the ExperimentContext, including the init task spec
	// when tracking is enabled.
	Plan(*v1alpha1.Pipeline, *v1alpha1.CompileConfig) (ExperimentContext, error)
}

// Builder produces the execution task spec for every original node.
type Builder interface {
	// Build returns the compiled task nodes keyed by node name. It does
	// not wire lifecycle nodes; that is the assembler's job.
	Build(*v1alpha1.Pipeline, *v1alpha1.CompileConfig, map[string]ResolvedResources, VolumeLifecyclePlan, ExperimentContext) (map[string]*Node, error)
}

// Assembler materializes the final CompiledGraph from the built nodes and
// the planner outputs, inserting synthesized lifecycle nodes.
type Assembler interface {
	// Assemble wires synthesized nodes into the graph, preserves every
	// original edge, and re-validates acyclicity.
	Assemble(*v1alpha1.Pipeline, *v1alpha1.CompileConfig, map[string]*Node, VolumeLifecyclePlan, ExperimentContext) (*CompiledGraph, error)
}

// Compiler compiles a Pipeline into a CompiledGraph.
type Compiler interface {
	Compile(*v1alpha1.Pipeline, *v1alpha1.CompileConfig) (*CompiledGraph, error)
}

// GraphCompiler orchestrates the compilation pipeline end-to-end:
//
//	Validate -> Resolve -> Plan(Volume) -> Plan(Tracking) -> Build -> Assemble
//
// Each stage can be replaced through options for testing or custom
// behavior. Compilation is a pure, synchronous graph transformation: no
// shared state across invocations, a fresh immutable CompiledGraph per
// call.
type GraphCompiler struct {
	validator       Validator
	resources       ResourceResolver
	volumePlanner   VolumePlanner
	trackingPlanner TrackingPlanner
	builder         Builder
	assembler       Assembler
}

var _ Compiler = (*GraphCompiler)(nil)

// Option mutates GraphCompiler stage wiring before defaults are applied.
type Option func(*GraphCompiler)

// WithValidator overrides the validator stage implementation.
func WithValidator(v Validator) Option { return func(c *GraphCompiler) { c.validator = v } }

// WithResourceResolver overrides the resource-resolver stage implementation.
func WithResourceResolver(r ResourceResolver) Option {
	return func(c *GraphCompiler) { c.resources = r }
}

// WithVolumePlanner overrides the volume-planner stage implementation.
func WithVolumePlanner(p VolumePlanner) Option { return func(c *GraphCompiler) { c.volumePlanner = p } }

// WithTrackingPlanner overrides the tracking-planner stage implementation.
func WithTrackingPlanner(p TrackingPlanner) Option {
	return func(c *GraphCompiler) { c.trackingPlanner = p }
}

// WithBuilder overrides the builder stage implementation.
func WithBuilder(b Builder) Option { return func(c *GraphCompiler) { c.builder = b } }

// WithAssembler overrides the assembler stage implementation.
func WithAssembler(a Assembler) Option { return func(c *GraphCompiler) { c.assembler = a } }

// NewCompiler constructs a GraphCompiler. Options inject custom stages;
// any stage not provided gets the package default implementation.
func NewCompiler(opts ...Option) *GraphCompiler {
	c := &GraphCompiler{}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		c.validator = newValidator()
	}
	if c.resources == nil {
		c.resources = newResourceResolver()
	}
	if c.volumePlanner == nil {
		c.volumePlanner = newVolumePlanner()
	}
	if c.trackingPlanner == nil {
		c.trackingPlanner = newTrackingPlanner()
	}
	if c.builder == nil {
		c.builder = newBuilder()
	}
	if c.assembler == nil {
		c.assembler = newAssembler()
	}
	return c
}

// Compile compiles a Pipeline into a CompiledGraph.
func (c *GraphCompiler) Compile(pipeline *v1alpha1.Pipeline, cfg *v1alpha1.CompileConfig) (*CompiledGraph, error) {
	if err := c.validator.Validate(pipeline, cfg); err != nil {
		return nil, err
	}
	resources, err := c.resources.Resolve(pipeline, cfg)
	if err != nil {
		return nil, err
	}
	volume, err := c.volumePlanner.Plan(pipeline, cfg)
	if err != nil {
		return nil, err
	}
	tracking, err := c.trackingPlanner.Plan(pipeline, cfg)
	if err != nil {
		return nil, err
	}
	nodes, err := c.builder.Build(pipeline, cfg, resources, volume, tracking)
	if err != nil {
		return nil, err
	}
	return c.assembler.Assemble(pipeline, cfg, nodes, volume, tracking)
}
