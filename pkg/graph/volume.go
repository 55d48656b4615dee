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

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/rand"
	"sigs.k8s.io/yaml"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
)

const (
	// SharedVolumeName is the volume name tasks mount the claim under.
	SharedVolumeName = "storage"
	// DefaultVolumeMountPath is where the shared volume appears in task
	// containers when no mount path is configured.
	DefaultVolumeMountPath = "/home/kedro/data"

	defaultVolumeSize       = "1Gi"
	claimNameSuffixLength   = 5
	defaultVolumeAccessMode = corev1.ReadWriteMany
)

// VolumeLifecyclePlan is the storage lifecycle decision for one
// compilation. When disabled every other field is zero and the compiler
// skips storage synthesis entirely.
type VolumeLifecyclePlan struct {
	// Enabled reports whether a shared volume is provisioned for the run.
	Enabled bool

	// ClaimName is the generated unique name of the volume claim.
	ClaimName string

	// Size and AccessModes of the claim.
	Size        resource.Quantity
	AccessModes []corev1.PersistentVolumeAccessMode

	// StorageClassName selects the claim's storage class, when set.
	StorageClassName *string

	// Owner is the fsGroup applied to every pod mounting the volume.
	Owner int64

	// MountPath is the location of the volume in task containers.
	MountPath string

	// Seed describes the optional initial-dataset copy. Nil means the
	// volume starts empty.
	Seed *v1alpha1.VolumeSeed

	// InitTask, SeedTask and TeardownTask are the execution specs of the
	// synthesized lifecycle nodes. SeedTask is nil when Seed is nil.
	InitTask     *TaskSpec
	SeedTask     *TaskSpec
	TeardownTask *TaskSpec
}

type volumePlanner struct{}

func newVolumePlanner() VolumePlanner { return &volumePlanner{} }

// Plan produces the VolumeLifecyclePlan for a compilation. The claim name
// carries a random suffix so that concurrent runs of the same pipeline
// never share a volume.
func (p *volumePlanner) Plan(pipeline *v1alpha1.Pipeline, cfg *v1alpha1.CompileConfig) (VolumeLifecyclePlan, error) {
	if !cfg.Volume.Enabled {
		return VolumeLifecyclePlan{}, nil
	}

	size := resource.MustParse(defaultVolumeSize)
	if cfg.Volume.Size != nil {
		if cfg.Volume.Size.Sign() <= 0 {
			return VolumeLifecyclePlan{}, configurationf("volume", "size must be positive, got %s", cfg.Volume.Size.String())
		}
		size = *cfg.Volume.Size
	}

	accessModes := cfg.Volume.AccessModes
	if len(accessModes) == 0 {
		accessModes = []corev1.PersistentVolumeAccessMode{defaultVolumeAccessMode}
	}

	mountPath := cfg.Volume.MountPath
	if mountPath == "" {
		mountPath = DefaultVolumeMountPath
	}

	plan := VolumeLifecyclePlan{
		Enabled:          true,
		ClaimName:        fmt.Sprintf("%s-storage-%s", pipeline.Name, rand.String(claimNameSuffixLength)),
		Size:             size,
		AccessModes:      accessModes,
		StorageClassName: cfg.Volume.StorageClassName,
		Owner:            cfg.Volume.Owner,
		MountPath:        mountPath,
		Seed:             cfg.Volume.Seed,
	}

	manifest, err := claimManifest(&plan, cfg.Namespace)
	if err != nil {
		return VolumeLifecyclePlan{}, graphErr("volume", err)
	}

	plan.InitTask = &TaskSpec{
		ResourceAction:   "create",
		ResourceManifest: manifest,
	}
	plan.TeardownTask = &TaskSpec{
		ResourceAction:   "delete",
		ResourceManifest: manifest,
	}
	if plan.Seed != nil {
		plan.SeedTask = p.seedTask(&plan, cfg)
	}
	return plan, nil
}

// seedTask copies the reference dataset layout out of the seed image into
// the fresh volume, so tasks start from a known initial state.
func (p *volumePlanner) seedTask(plan *VolumeLifecyclePlan, cfg *v1alpha1.CompileConfig) *TaskSpec {
	image := plan.Seed.Image
	if image == "" {
		image = cfg.Image
	}
	source := plan.Seed.SourcePath
	if source == "" {
		source = plan.MountPath
	}

	// The volume mounts at a staging path so the copy works even when the
	// seed source equals the task mount path.
	const stagingPath = "/pipeflow/volume"
	fsGroup := plan.Owner
	return &TaskSpec{
		Image:           image,
		ImagePullPolicy: cfg.ImagePullPolicy,
		Command:         []string{"sh", "-c"},
		Args:            []string{fmt.Sprintf("cp -r %s/. %s/", source, stagingPath)},
		VolumeMounts: []corev1.VolumeMount{
			{Name: SharedVolumeName, MountPath: stagingPath},
		},
		Volumes: []corev1.Volume{claimVolume(plan.ClaimName)},
		FSGroup: &fsGroup,
	}
}

func claimManifest(plan *VolumeLifecyclePlan, namespace string) (string, error) {
	claim := corev1.PersistentVolumeClaim{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "PersistentVolumeClaim",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      plan.ClaimName,
			Namespace: namespace,
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes:      plan.AccessModes,
			StorageClassName: plan.StorageClassName,
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: plan.Size,
				},
			},
		},
	}
	out, err := yaml.Marshal(claim)
	if err != nil {
		return "", fmt.Errorf("marshalling claim manifest: %w", err)
	}
	return string(out), nil
}

func claimVolume(claimName string) corev1.Volume {
	return corev1.Volume{
		Name: SharedVolumeName,
		VolumeSource: corev1.VolumeSource{
			PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
				ClaimName: claimName,
			},
		},
	}
}
