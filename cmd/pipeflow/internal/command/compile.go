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

package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipeflow-run/pipeflow/cmd/pipeflow/internal/loader"
	"github.com/pipeflow-run/pipeflow/pkg/emitter"
	"github.com/pipeflow-run/pipeflow/pkg/graph"
)

// CompileOptions holds the options for the compile command.
type CompileOptions struct {
	PipelinePath string
	ConfigPath   string
	Image        string
	Format       string
	Destination  string

	S3Region    string
	S3Endpoint  string
	S3PathStyle bool

	// imageChanged records whether --image was set explicitly; only then
	// does it override the config file value.
	imageChanged bool
}

func NewCompileCommand(cli *CLI) *cobra.Command {
	var opts CompileOptions

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a pipeline into a workflow document",
		Long: Highlight("pipeflow compile -f <pipeline> -c <config>") + "\n\n" +
			"Compile a pipeline definition into an executable workflow document.\n\n" +
			"The compiler validates the pipeline, resolves per-node resources,\n" +
			"synthesizes shared-volume and experiment-tracking lifecycle nodes,\n" +
			"and renders the result as YAML or JSON.\n\n" +
			"Examples:\n" +
			"  # Compile to stdout\n" +
			"  pipeflow compile -f pipeline.yaml -c config.yaml\n\n" +
			"  # Compile to a local file as JSON\n" +
			"  pipeflow compile -f pipeline.yaml -c config.yaml -o json -d workflow.json\n\n" +
			"  # Compile to an object store\n" +
			"  pipeflow compile -f pipeline.yaml -c config.yaml -d s3://bucket/dags/workflow.yaml\n",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.imageChanged = cmd.Flags().Changed("image")
			return RunCompile(cmd.Context(), cli, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.PipelinePath, "file", "f", "", "Path to the pipeline definition file")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the compile configuration file")
	cmd.Flags().StringVar(&opts.Image, "image", "", "Container image running pipeline nodes (overrides the config file)")
	cmd.Flags().StringVarP(&opts.Format, "output", "o", string(emitter.FormatYAML), "Artifact format. One of: (yaml | json)")
	cmd.Flags().StringVarP(&opts.Destination, "destination", "d", "", "Artifact destination: local path or s3:// URL (defaults to stdout)")
	cmd.Flags().StringVar(&opts.S3Region, "s3-region", "", "Region for s3:// destinations")
	cmd.Flags().StringVar(&opts.S3Endpoint, "s3-endpoint", "", "Custom endpoint for s3:// destinations")
	cmd.Flags().BoolVar(&opts.S3PathStyle, "s3-path-style", false, "Use path-style addressing for s3:// destinations")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("config")

	return cmd
}

func RunCompile(ctx context.Context, cli *CLI, opts CompileOptions) error {
	log := cli.Logger()

	pipeline, err := loader.LoadPipeline(opts.PipelinePath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline %q: %w", opts.PipelinePath, err)
	}

	cfg, err := loader.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config %q: %w", opts.ConfigPath, err)
	}

	// An explicit --image wins over the config file value.
	if opts.imageChanged {
		cfg.Image = opts.Image
	}

	compiled, err := graph.NewCompiler().Compile(pipeline, cfg)
	if err != nil {
		return err
	}
	log.Debug("compiled pipeline",
		"pipeline", compiled.PipelineName,
		"nodes", len(compiled.Nodes))

	em, err := emitter.New(emitter.Format(opts.Format))
	if err != nil {
		return err
	}

	destination := opts.Destination
	if destination == "" {
		destination = cfg.Destination
	}
	if destination == "" {
		data, err := em.Marshal(compiled)
		if err != nil {
			return err
		}
		cli.Printf("%s", data)
		return nil
	}

	dest, err := emitter.ParseDestination(destination, emitter.S3Options{
		Region:         opts.S3Region,
		Endpoint:       opts.S3Endpoint,
		ForcePathStyle: opts.S3PathStyle,
	})
	if err != nil {
		return err
	}

	if err := em.Emit(ctx, compiled, dest); err != nil {
		return err
	}

	log.Info("wrote workflow document",
		"pipeline", compiled.PipelineName,
		"destination", dest.String())
	return nil
}
