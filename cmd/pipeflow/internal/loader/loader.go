package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"sigs.k8s.io/yaml"

	"github.com/pipeflow-run/pipeflow/api/v1alpha1"
)

// PipelineLoadResult carries one pipeline file's outcome so callers can
// keep going past a malformed file.
type PipelineLoadResult struct {
	Path     string
	Pipeline *v1alpha1.Pipeline
	Err      error
}

// collectYAMLFiles returns a list of YAML file paths from the given path.
// If path is a file, it returns a single-element slice.
// If path is a directory, it returns all .yaml and .yml files in the directory (non-recursive).
func collectYAMLFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if !info.IsDir() {
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil, fmt.Errorf("file %q must have a .yaml or .yml extension", path)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

// LoadPipelinesDetailed loads Pipeline documents from a file or directory,
// returning per-file results (including parse errors) so callers can continue
// on failure. Only errors related to accessing the path are returned directly.
func LoadPipelinesDetailed(path string) ([]PipelineLoadResult, error) {
	files, err := collectYAMLFiles(path)
	if err != nil {
		return nil, err
	}

	results := make([]PipelineLoadResult, 0, len(files))
	for _, file := range files {
		p, loadErr := loadPipelineFile(file)
		results = append(results, PipelineLoadResult{Path: file, Pipeline: p, Err: loadErr})
	}

	return results, nil
}

// LoadPipeline loads exactly one Pipeline document from a YAML file.
func LoadPipeline(path string) (*v1alpha1.Pipeline, error) {
	return loadPipelineFile(path)
}

func loadPipelineFile(path string) (*v1alpha1.Pipeline, error) {
	data, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	var p v1alpha1.Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Pipeline: %w", err)
	}

	// Verify it's actually a Pipeline.
	if p.Kind != "" && p.Kind != "Pipeline" {
		return nil, fmt.Errorf("expected kind Pipeline, got %s", p.Kind)
	}

	return &p, nil
}

// LoadConfig loads a CompileConfig document from a YAML file.
func LoadConfig(path string) (*v1alpha1.CompileConfig, error) {
	data, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg v1alpha1.CompileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CompileConfig: %w", err)
	}

	if cfg.Kind != "" && cfg.Kind != "CompileConfig" {
		return nil, fmt.Errorf("expected kind CompileConfig, got %s", cfg.Kind)
	}

	return &cfg, nil
}

// loadFile reads a YAML file and returns its content as a byte slice.
func loadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access file: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("path %q is a directory, provide a path to a configuration file (.yaml or .yml)", path)
	}

	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("file %q must have a .yaml or .yml extension", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return content, nil
}
