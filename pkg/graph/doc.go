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

// Package graph compiles a declarative v1alpha1.Pipeline into a
// CompiledGraph: the schedulable orchestration graph where every pipeline
// step is a containerized task and the storage and experiment-tracking
// lifecycles are synthesized into the node set.
//
// The GraphCompiler runs a fixed multi-stage pipeline:
//
//	Validate -> Resolve -> Plan(Volume) -> Plan(Tracking) -> Build -> Assemble
//
// Stage contract:
//   - Stage inputs are treated as immutable.
//   - Each stage returns a distinct output consumed by later stages.
//
// Stage responsibilities:
//
//   - Validate:
//     Enforces the compile-time rules: usable configuration, unique valid
//     node names, no dangling dependency references, acyclic input graph,
//     positive quantities/durations, well-formed secret references.
//
//   - Resolve:
//     Merges each node's resource override over the pipeline-wide default
//     and produces the effective ResolvedResources per node.
//
//   - Plan(Volume):
//     Decides the shared-storage lifecycle and produces the provisioning,
//     optional seeding, and teardown task specs.
//
//   - Plan(Tracking):
//     Decides experiment correlation and produces the init task spec plus
//     the run-identifier placeholder injected into every task.
//
//   - Build:
//     Produces the execution task spec of every original node: container
//     invocation, resources, volume mount, run-ID env, placement, secrets.
//
//   - Assemble:
//     Wires the synthesized nodes into the dependency graph, preserving
//     every original edge, and re-validates acyclicity before emitting the
//     CompiledGraph.
//
// Error model:
//
//   - ConfigurationError: bad resource/secret/duration values, raised at
//     compile time so misconfiguration never reaches the cluster.
//   - GraphError: cyclic or dangling input, or a synthesis invariant
//     violation. Fatal, never retried.
//
// Helpers IsConfiguration and IsGraph classify errors for callers. There is
// no retry anywhere in the compiler; retry is an orchestrator-level concern
// applied to the compiled task specs.
package graph
