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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pipeflow-run/pipeflow/pkg/tracking/mlflow"
)

// ExperimentInitOptions holds the options for the experiment init command.
type ExperimentInitOptions struct {
	ExperimentName string
	RunName        string
	TrackingURI    string
	OutputPath     string
}

func NewExperimentCommand(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment [subcommand]",
		Short: "Manage experiment-tracking state",
		Long: Highlight("pipeflow experiment [subcommand]") + "\n\n" +
			"Manage experiment-tracking state on the tracking server.\n\n" +
			"These commands run inside synthesized workflow nodes, ahead of\n" +
			"the pipeline's own tasks.\n",
	}

	cmd.AddCommand(
		NewExperimentInitCommand(cli),
	)

	return cmd
}

func NewExperimentInitCommand(cli *CLI) *cobra.Command {
	var opts ExperimentInitOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Ensure an experiment exists and start a run",
		Long: Highlight("pipeflow experiment init --experiment-name <name>") + "\n\n" +
			"Ensure the named experiment exists on the tracking server, start\n" +
			"a run in it, and write the run ID to the output path so the\n" +
			"workflow engine can export it to downstream tasks.\n",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.TrackingURI == "" {
				opts.TrackingURI = os.Getenv("MLFLOW_TRACKING_URI")
			}
			if opts.TrackingURI == "" {
				return fmt.Errorf("tracking URI not set, use --tracking-uri or MLFLOW_TRACKING_URI")
			}
			return RunExperimentInit(cmd.Context(), cli, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ExperimentName, "experiment-name", "", "Name of the experiment to ensure")
	cmd.Flags().StringVar(&opts.RunName, "run-name", "", "Name of the run to start")
	cmd.Flags().StringVar(&opts.TrackingURI, "tracking-uri", "", "Tracking server URI (defaults to MLFLOW_TRACKING_URI)")
	cmd.Flags().StringVar(&opts.OutputPath, "output", "", "Path to write the run ID to (stdout when empty)")
	cmd.MarkFlagRequired("experiment-name")

	return cmd
}

func RunExperimentInit(ctx context.Context, cli *CLI, opts ExperimentInitOptions) error {
	log := cli.Logger()
	client := mlflow.NewClient(opts.TrackingURI, nil)

	experimentID, outcome, err := client.EnsureExperiment(ctx, opts.ExperimentName)
	if err != nil {
		return fmt.Errorf("failed to ensure experiment %q: %w", opts.ExperimentName, err)
	}
	log.Info("ensured experiment",
		"experiment", opts.ExperimentName,
		"id", experimentID,
		"outcome", outcome.String())

	runID, err := client.StartRun(ctx, experimentID, opts.RunName)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	log.Info("started run", "run_id", runID)

	if opts.OutputPath == "" {
		cli.Println(runID)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, []byte(runID), 0o644); err != nil {
		return fmt.Errorf("failed to write run ID: %w", err)
	}

	return nil
}
