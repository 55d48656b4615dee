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

// Package metadata holds the well-known labels stamped on every emitted
// workflow and task so cluster operators can trace pods back to the
// pipeline and node that produced them.
package metadata

import (
	"errors"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
	"github.com/pipeflow-run/pipeflow/pkg/version"
)

// LabelPipeflowPrefix is the label key prefix used to identify
// pipeflow-owned resources.
const LabelPipeflowPrefix = v1alpha1.PipeflowDomainName + "/"

const (
	// PipelineLabel links an emitted resource to the pipeline it was
	// compiled from.
	PipelineLabel = LabelPipeflowPrefix + "pipeline"

	// NodeIDLabel links a task pod to its pipeline node.
	NodeIDLabel = LabelPipeflowPrefix + "node-id"

	// OwnedLabel marks resources created by pipeflow.
	OwnedLabel = LabelPipeflowPrefix + "owned"

	// VersionLabel records the plugin version that compiled the artifact.
	VersionLabel = LabelPipeflowPrefix + "version"
)

// StartupTimeoutAnnotation carries the configured startup bound of a task
// pod, in seconds. The orchestrator's schema has no startup-only deadline
// field, so the bound travels as pod metadata for admission and monitoring
// tooling instead of as a whole-run deadline that would kill healthy
// long-running tasks.
const StartupTimeoutAnnotation = LabelPipeflowPrefix + "startup-timeout-seconds"

// IsOwned returns true if the resource is owned by pipeflow.
func IsOwned(meta metav1.Object) bool {
	v, ok := meta.GetLabels()[OwnedLabel]
	return ok && v == "true"
}

var ErrDuplicatedLabels = errors.New("duplicate labels")

var _ Labeler = GenericLabeler{}

// Labeler is a set of labels that can be applied to a resource.
type Labeler interface {
	Labels() map[string]string
	ApplyLabels(metav1.Object)
	Merge(Labeler) (Labeler, error)
}

// GenericLabeler is a map of labels that can be applied to a resource.
// It implements the Labeler interface.
type GenericLabeler map[string]string

// Labels returns a copy of the labels.
func (gl GenericLabeler) Labels() map[string]string {
	return gl.Copy()
}

// ApplyLabels applies the labels to the resource.
func (gl GenericLabeler) ApplyLabels(meta metav1.Object) {
	labels := meta.GetLabels()
	if labels == nil {
		labels = make(map[string]string)
	}
	for k, v := range gl {
		labels[k] = v
	}
	meta.SetLabels(labels)
}

// Merge merges the labels from the other labeler into the current labeler.
// If there are any duplicate keys, an error is returned.
func (gl GenericLabeler) Merge(other Labeler) (Labeler, error) {
	newLabels := gl.Copy()
	for k, v := range other.Labels() {
		if _, ok := newLabels[k]; ok {
			return nil, fmt.Errorf("%v: found key '%s' in both maps", ErrDuplicatedLabels, k)
		}
		newLabels[k] = v
	}
	return GenericLabeler(newLabels), nil
}

// Copy returns a copy of the labels.
func (gl GenericLabeler) Copy() map[string]string {
	newGenericLabeler := make(map[string]string, len(gl))
	for k, v := range gl {
		newGenericLabeler[k] = v
	}
	return newGenericLabeler
}

// NewWorkflowLabeler returns a labeler for the emitted workflow object.
func NewWorkflowLabeler(pipelineName string) GenericLabeler {
	return map[string]string{
		PipelineLabel: safeLabelValue(pipelineName),
		OwnedLabel:    "true",
		VersionLabel:  safeLabelValue(version.Version),
	}
}

// NewTaskLabeler returns a labeler for one task of a compiled pipeline.
func NewTaskLabeler(pipelineName, nodeID string) GenericLabeler {
	return map[string]string{
		PipelineLabel: safeLabelValue(pipelineName),
		NodeIDLabel:   safeLabelValue(nodeID),
		OwnedLabel:    "true",
	}
}

func safeLabelValue(value string) string {
	if len(validation.IsValidLabelValue(value)) == 0 {
		return value
	}
	// Development builds may carry '+dirty' style suffixes; '-' keeps the
	// value a valid label.
	return strings.ReplaceAll(value, "+", "-")
}
