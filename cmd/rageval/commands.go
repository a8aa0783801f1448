package main

import (
	"github.com/spf13/cobra"
)

type runFlags struct {
	metrics     []string
	concurrency int
	dataDir     string
}

// buildRunCmd creates the "run" command that evaluates one test data file.
func buildRunCmd(global *globalFlags) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <test-data>",
		Short: "Evaluate the QA service against a test data file",
		Long: `Ask the QA service every question in the test data file, score each answer
with the configured metrics and upload the results to LangSmith when an API key is set.

The test data name is resolved inside the data directory; ".json" is appended when
the name has no extension. The command exits non-zero when any test case fails or
a score does not exceed its configured threshold.`,
		Example: `  # Evaluate test_data/test_4.json with settings from the environment
  rageval run test_4

  # Override the metrics and evaluate four test cases at once
  rageval run test_4 --metrics faithfulness,context_recall --concurrency 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, *global, flags, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&flags.metrics, "metrics", "m", nil,
		"Metrics to run, e.g. factual_correctness(mode=f1) (defaults to the configured metrics)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0,
		"Test cases evaluated at once (defaults to the configured concurrency)")
	cmd.Flags().StringVar(&flags.dataDir, "data-dir", "",
		"Directory holding test data files (defaults to the configured data_dir)")

	return cmd
}

// buildNormalizeCmd creates the "normalize" command that prints the
// conversation batch a JSON prompt value normalizes to.
func buildNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [json]",
		Short: "Print the conversation batch a prompt value normalizes to",
		Long: `Read a JSON prompt value from the argument or stdin and print the batch of
conversations the judge model would receive. Strings become human messages,
objects with "role" and "content" become messages of that role, and nested
arrays become separate conversations.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(cmd, args)
		},
	}
}
