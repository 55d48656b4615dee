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

package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestIsOwned(t *testing.T) {
	cases := []struct {
		name     string
		labels   map[string]string
		expected bool
	}{
		{
			name:     "owned by pipeflow",
			labels:   map[string]string{OwnedLabel: "true"},
			expected: true,
		},
		{
			name:     "explicitly unowned",
			labels:   map[string]string{OwnedLabel: "false"},
			expected: false,
		},
		{
			name:     "no ownership label",
			labels:   map[string]string{},
			expected: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := metav1.ObjectMeta{Labels: tc.labels}
			assert.Equal(t, tc.expected, IsOwned(&meta))
		})
	}
}

func TestTaskLabeler(t *testing.T) {
	labels := NewTaskLabeler("spaceflights", "preprocess-companies").Labels()

	assert.Equal(t, "spaceflights", labels[PipelineLabel])
	assert.Equal(t, "preprocess-companies", labels[NodeIDLabel])
	assert.Equal(t, "true", labels[OwnedLabel])
}

func TestApplyLabelsPreservesExisting(t *testing.T) {
	meta := &metav1.ObjectMeta{Labels: map[string]string{"team": "data"}}
	NewWorkflowLabeler("spaceflights").ApplyLabels(meta)

	assert.Equal(t, "data", meta.Labels["team"])
	assert.Equal(t, "spaceflights", meta.Labels[PipelineLabel])
	assert.True(t, IsOwned(meta))
}

func TestMergeRejectsDuplicates(t *testing.T) {
	a := GenericLabeler{"x": "1"}
	b := GenericLabeler{"x": "2", "y": "3"}

	_, err := a.Merge(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrDuplicatedLabels.Error())

	merged, err := a.Merge(GenericLabeler{"y": "3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1", "y": "3"}, merged.Labels())
}

func TestLabelsReturnsCopy(t *testing.T) {
	gl := GenericLabeler{"x": "1"}
	got := gl.Labels()
	got["x"] = "mutated"

	assert.Equal(t, "1", gl["x"])
}
