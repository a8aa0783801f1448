package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datar-psa/rageval"
	"github.com/datar-psa/rageval/batch"
	"github.com/datar-psa/rageval/config"
	"github.com/datar-psa/rageval/dataset"
	"github.com/datar-psa/rageval/prompt"
	"github.com/datar-psa/rageval/qaclient"
	"github.com/datar-psa/rageval/runner"
	"github.com/datar-psa/rageval/tracking"
)

// errEvaluationFailed makes the process exit non-zero after the report is printed
var errEvaluationFailed = errors.New("evaluation failed")

func loadConfig(flags globalFlags) (*config.Config, error) {
	load := config.FromEnv
	if flags.configPath != "" {
		load = func() (*config.Config, error) { return config.Load(flags.configPath) }
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return overrideLogLevel(cfg, flags), nil
}

func overrideLogLevel(cfg *config.Config, flags globalFlags) *config.Config {
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	return cfg
}

func runEvaluate(cmd *cobra.Command, global globalFlags, flags runFlags, name string) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if len(flags.metrics) > 0 {
		cfg.Evaluation.Metrics = flags.metrics
	}
	if flags.concurrency > 0 {
		cfg.Evaluation.Concurrency = flags.concurrency
	}
	if flags.dataDir != "" {
		cfg.Evaluation.DataDir = flags.dataDir
	}

	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	cases, err := dataset.Load(cfg.Evaluation.DataDir, name)
	if err != nil {
		return err
	}

	judge := rageval.NewOpenAILLMJudge(
		rageval.WithAPIKey(cfg.OpenAI.APIKey),
		rageval.WithBaseURL(cfg.OpenAI.BaseURL),
		rageval.WithOpenAIChatModel(cfg.OpenAI.ChatModel),
		rageval.WithOpenAIEmbeddingModel(cfg.OpenAI.EmbeddingModel),
	)
	single, conversation, err := judge.Metrics(cfg.Evaluation.Metrics)
	if err != nil {
		return err
	}

	client := qaclient.New(
		qaclient.WithEndpoint(cfg.QA.Endpoint),
		qaclient.WithHTTPClient(&http.Client{Timeout: cfg.QA.Timeout}),
		qaclient.WithLogger(logger.With("component", "qaclient")),
	)
	uploader := tracking.New(
		tracking.WithAPIKey(cfg.Tracking.APIKey),
		tracking.WithEndpoint(cfg.Tracking.Endpoint),
		tracking.WithProject(cfg.Tracking.Project),
		tracking.WithLogger(logger.With("component", "tracking")),
	)
	if !uploader.Enabled() {
		logger.Warn("no LangSmith API key configured, results will not be uploaded")
	}

	orchestrator := batch.New(client,
		batch.WithMetrics(single...),
		batch.WithConversationMetrics(conversation...),
		batch.WithUploader(uploader),
		batch.WithConcurrency(cfg.Evaluation.Concurrency),
		batch.WithRunner(runner.New(
			runner.WithConcurrency(cfg.Evaluation.MetricConcurrency),
			runner.WithLogger(logger.With("component", "runner")),
		)),
		batch.WithLogger(logger.With("component", "batch")),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting evaluation", "test_data", name, "test_cases", len(cases), "metrics", cfg.Evaluation.Metrics)
	outcomes := orchestrator.Evaluate(ctx, cases)

	if !printReport(cmd.OutOrStdout(), cfg, outcomes) {
		return errEvaluationFailed
	}
	return nil
}

// printReport writes one block per test case and a summary line.
// It reports whether every case succeeded and every thresholded score passed.
func printReport(w io.Writer, cfg *config.Config, outcomes []batch.Outcome) bool {
	passed := true
	for _, out := range outcomes {
		fmt.Fprintf(w, "test case %s\n", out.TestCaseID)
		if out.FailedStage() == batch.StageAnswer {
			fmt.Fprintf(w, "  FAILED: %v\n", out.Err)
			passed = false
			continue
		}
		if out.Failed() {
			passed = false
		}

		for _, name := range out.Scores.Names() {
			s := out.Scores.Scores[name]
			if s.Error != nil {
				fmt.Fprintf(w, "  %-45s error: %v\n", name, s.Error)
				continue
			}
			line := fmt.Sprintf("  %-45s %.3f", name, s.Score)
			if threshold, ok := cfg.Threshold(name); ok {
				if s.Score > threshold {
					line += fmt.Sprintf("  pass (> %.2f)", threshold)
				} else {
					line += fmt.Sprintf("  FAIL (> %.2f)", threshold)
					passed = false
				}
			}
			fmt.Fprintln(w, line)
		}

		if out.Upload.Err != nil {
			fmt.Fprintf(w, "  upload failed: %v\n", out.Upload.Err)
		}
	}

	summary := batch.Summarize(outcomes)
	fmt.Fprintf(w, "\n%d test cases, %d failed, %d uploaded, %d upload skipped\n",
		summary.Total, summary.Failed, summary.Uploaded, summary.Skipped)
	return passed
}

func runNormalize(cmd *cobra.Command, args []string) error {
	var raw []byte
	if len(args) == 1 {
		raw = []byte(args[0])
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		raw = data
	}

	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(raw))), &v); err != nil {
		return fmt.Errorf("failed to parse prompt value: %w", err)
	}

	normalized := prompt.Normalize(prompt.FromAny(v))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(normalized)
}
