package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipeflow-run/pipeflow/cmd/pipeflow/internal/loader"
	"github.com/pipeflow-run/pipeflow/cmd/pipeflow/internal/view"
	"github.com/pipeflow-run/pipeflow/pkg/graph"
)

// ValidateOptions holds the options for the validate command.
type ValidateOptions struct {
	Path       string
	ConfigPath string
}

func NewValidateCommand(cli *CLI) *cobra.Command {
	var opts ValidateOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate pipeline definitions",
		Long: Highlight("pipeflow validate -f <path> -c <config>") + "\n\n" +
			"Validate pipeline definitions by file or directory.\n\n" +
			"Runs the full compilation against each pipeline and reports\n" +
			"any configuration or graph errors without writing an artifact.\n" +
			"When targeting a directory, all .yaml and .yml files will be validated.\n\n" +
			"Examples:\n" +
			"  # Validate a single pipeline file\n" +
			"  pipeflow validate -f pipeline.yaml -c config.yaml\n\n" +
			"  # Validate all pipelines in a directory\n" +
			"  pipeflow validate -f pipelines/ -c config.yaml\n",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunValidate(cmd.Context(), cli, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Path, "file", "f", "", "Path to pipeline file or directory")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the compile configuration file")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("config")

	return cmd
}

func RunValidate(_ context.Context, cli *CLI, opts ValidateOptions) error {
	validateView := view.NewValidateView(cli.Viewer)

	results, err := loader.LoadPipelinesDetailed(opts.Path)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		return fmt.Errorf("no YAML files found in %q", opts.Path)
	}

	cfg, err := loader.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config %q: %w", opts.ConfigPath, err)
	}

	compiler := graph.NewCompiler()
	resultView := view.ValidateResult{FileCount: len(results)}

	for _, result := range results {
		if result.Err != nil {
			resultView.Errors = append(resultView.Errors, view.ValidateFileError{File: result.Path, Message: result.Err.Error()})
			continue
		}

		if _, err := compiler.Compile(result.Pipeline, cfg); err != nil {
			resultView.Errors = append(resultView.Errors, view.ValidateFileError{File: result.Path, Message: err.Error()})
		}
	}

	validateView.Render(resultView)
	if resultView.HasErrors() {
		return errors.New("")
	}
	return nil
}
