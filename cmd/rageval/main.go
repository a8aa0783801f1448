// Package main provides the rageval CLI.
//
// Evaluate the QA service against a test data file:
//
//	rageval run test_4 --config rageval.yaml
//
// Inspect how a prompt value is normalized before it reaches the judge model:
//
//	echo '[["hello", {"role": "ai", "content": "hi"}]]' | rageval normalize
//
// # Environment Variables
//
//   - RAGEVAL_CONFIG: path to the YAML configuration file
//   - OPENAI_API_KEY, OPENAI_BASE_URL: judge and embedding models
//   - LANGCHAIN_API_KEY or LANGSMITH_API_KEY: enables result upload
//   - LANGCHAIN_ENDPOINT, RAGEVAL_PROJECT: upload target
//   - RAG_QA_ENDPOINT: QA service under test
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:          "rageval",
		Short:        "Evaluate a retrieval-augmented QA service",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("RAGEVAL_CONFIG"),
		"Path to YAML configuration file (environment only when empty)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		buildRunCmd(&flags),
		buildNormalizeCmd(),
	)
	return rootCmd
}

type globalFlags struct {
	configPath string
	logLevel   string
}
