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
	"maps"
	"slices"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
)

// ResolvedResources is the effective resource shape of one node after the
// per-node override has been merged over the pipeline-wide default.
type ResolvedResources struct {
	Requirements   corev1.ResourceRequirements
	NodeSelector   map[string]string
	Labels         map[string]string
	Annotations    map[string]string
	Tolerations    []corev1.Toleration
	Secrets        []v1alpha1.SecretRef
	StartupTimeout metav1.Duration
}

type resourceResolver struct{}

func newResourceResolver() ResourceResolver { return &resourceResolver{} }

// Resolve computes the effective ResolvedResources for every pipeline node.
//
// Merge semantics: quantities and the startup timeout merge leaf by leaf
// (an unset override leaf inherits the default); selector/label/annotation
// maps merge key-wise with the override winning; toleration and secret
// lists replace the default wholesale when set on the node.
func (r *resourceResolver) Resolve(pipeline *v1alpha1.Pipeline, cfg *v1alpha1.CompileConfig) (map[string]ResolvedResources, error) {
	defaults := cfg.Resources
	if defaults == nil {
		defaults = &v1alpha1.ResourceSpec{}
	}

	resolved := make(map[string]ResolvedResources, len(pipeline.Spec.Nodes))
	for _, node := range pipeline.Spec.Nodes {
		spec := mergeResourceSpec(defaults, node.Resources)
		if err := validateResourceSpec(spec); err != nil {
			return nil, configurationf("resources", "node %q: %v", node.Name, err)
		}

		rr := ResolvedResources{
			Requirements:   requirements(spec),
			NodeSelector:   spec.NodeSelector,
			Labels:         spec.Labels,
			Annotations:    spec.Annotations,
			Tolerations:    spec.Tolerations,
			Secrets:        spec.Secrets,
			StartupTimeout: startupTimeout(spec, cfg),
		}
		if rr.StartupTimeout.Duration <= 0 {
			return nil, configurationf("resources", "node %q: startup timeout must be positive, got %s", node.Name, rr.StartupTimeout.Duration)
		}
		resolved[node.Name] = rr
	}
	return resolved, nil
}

// mergeResourceSpec merges the node-level override over the pipeline-wide
// default. Neither input is mutated.
func mergeResourceSpec(defaults, override *v1alpha1.ResourceSpec) *v1alpha1.ResourceSpec {
	merged := &v1alpha1.ResourceSpec{
		CPU:            mergeBounds(defaults.CPU, nil),
		Memory:         mergeBounds(defaults.Memory, nil),
		NodeSelector:   maps.Clone(defaults.NodeSelector),
		Labels:         maps.Clone(defaults.Labels),
		Annotations:    maps.Clone(defaults.Annotations),
		Tolerations:    slices.Clone(defaults.Tolerations),
		Secrets:        slices.Clone(defaults.Secrets),
		StartupTimeout: defaults.StartupTimeout,
	}
	if override == nil {
		return merged
	}

	merged.CPU = mergeBounds(merged.CPU, override.CPU)
	merged.Memory = mergeBounds(merged.Memory, override.Memory)
	for k, v := range override.NodeSelector {
		if merged.NodeSelector == nil {
			merged.NodeSelector = map[string]string{}
		}
		merged.NodeSelector[k] = v
	}
	for k, v := range override.Labels {
		if merged.Labels == nil {
			merged.Labels = map[string]string{}
		}
		merged.Labels[k] = v
	}
	for k, v := range override.Annotations {
		if merged.Annotations == nil {
			merged.Annotations = map[string]string{}
		}
		merged.Annotations[k] = v
	}
	if override.Tolerations != nil {
		merged.Tolerations = slices.Clone(override.Tolerations)
	}
	if override.Secrets != nil {
		merged.Secrets = slices.Clone(override.Secrets)
	}
	if override.StartupTimeout != nil {
		merged.StartupTimeout = override.StartupTimeout
	}
	return merged
}

func mergeBounds(defaults, override *v1alpha1.ResourceBounds) *v1alpha1.ResourceBounds {
	if defaults == nil && override == nil {
		return nil
	}
	merged := &v1alpha1.ResourceBounds{}
	if defaults != nil {
		merged.Request = defaults.Request
		merged.Limit = defaults.Limit
	}
	if override != nil {
		if override.Request != nil {
			merged.Request = override.Request
		}
		if override.Limit != nil {
			merged.Limit = override.Limit
		}
	}
	return merged
}

// validateResourceSpec enforces the compile-time configuration rules:
// positive quantities, positive durations, well-formed secret references.
func validateResourceSpec(spec *v1alpha1.ResourceSpec) error {
	if err := validateBounds("cpu", spec.CPU); err != nil {
		return err
	}
	if err := validateBounds("memory", spec.Memory); err != nil {
		return err
	}
	if spec.StartupTimeout != nil && spec.StartupTimeout.Duration <= 0 {
		return fmt.Errorf("startup timeout must be positive, got %s", spec.StartupTimeout.Duration)
	}
	for _, secret := range spec.Secrets {
		if err := validateSecretRef(secret); err != nil {
			return err
		}
	}
	return nil
}

func validateBounds(name string, bounds *v1alpha1.ResourceBounds) error {
	if bounds == nil {
		return nil
	}
	if err := validateQuantity(name+" request", bounds.Request); err != nil {
		return err
	}
	return validateQuantity(name+" limit", bounds.Limit)
}

func validateQuantity(name string, q *resource.Quantity) error {
	if q == nil {
		return nil
	}
	if q.Sign() <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, q.String())
	}
	return nil
}

// validateSecretRef rejects malformed secret bindings so they fail here
// rather than at execution time on the cluster.
func validateSecretRef(ref v1alpha1.SecretRef) error {
	if ref.Name == "" {
		return fmt.Errorf("secret reference has empty name")
	}
	hasEnv := ref.EnvVar != ""
	hasMount := ref.MountPath != ""
	switch {
	case hasEnv && hasMount:
		return fmt.Errorf("secret %q sets both envVar and mountPath", ref.Name)
	case !hasEnv && !hasMount:
		return fmt.Errorf("secret %q needs an envVar or mountPath target", ref.Name)
	case hasEnv:
		if msgs := validation.IsEnvVarName(ref.EnvVar); len(msgs) > 0 {
			return fmt.Errorf("secret %q: invalid envVar %q: %s", ref.Name, ref.EnvVar, strings.Join(msgs, "; "))
		}
		if ref.Key == "" {
			return fmt.Errorf("secret %q: envVar binding needs a key", ref.Name)
		}
	case hasMount:
		if !strings.HasPrefix(ref.MountPath, "/") {
			return fmt.Errorf("secret %q: mountPath %q must be absolute", ref.Name, ref.MountPath)
		}
	}
	return nil
}

func requirements(spec *v1alpha1.ResourceSpec) corev1.ResourceRequirements {
	reqs := corev1.ResourceRequirements{}
	setQuantity := func(list *corev1.ResourceList, name corev1.ResourceName, q *resource.Quantity) {
		if q == nil {
			return
		}
		if *list == nil {
			*list = corev1.ResourceList{}
		}
		(*list)[name] = *q
	}
	if spec.CPU != nil {
		setQuantity(&reqs.Requests, corev1.ResourceCPU, spec.CPU.Request)
		setQuantity(&reqs.Limits, corev1.ResourceCPU, spec.CPU.Limit)
	}
	if spec.Memory != nil {
		setQuantity(&reqs.Requests, corev1.ResourceMemory, spec.Memory.Request)
		setQuantity(&reqs.Limits, corev1.ResourceMemory, spec.Memory.Limit)
	}
	return reqs
}

func startupTimeout(spec *v1alpha1.ResourceSpec, cfg *v1alpha1.CompileConfig) metav1.Duration {
	if spec.StartupTimeout != nil {
		return *spec.StartupTimeout
	}
	seconds := int64(v1alpha1.DefaultStartupTimeout)
	if cfg.StartupTimeoutSeconds != nil {
		seconds = *cfg.StartupTimeoutSeconds
	}
	return metav1.Duration{Duration: time.Duration(seconds) * time.Second}
}
