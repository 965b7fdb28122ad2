package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/storytrace/internal/config"
	"github.com/dshills/storytrace/internal/pipeline"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// Exit codes.
const (
	exitInput      = 3 // bad flags, config, document or missing artifact
	exitProvider   = 4 // language model or embedding provider unavailable
	exitGeneration = 5 // story generation or artifact writing failed
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

// codeError returns an exitErr for the given code.
func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// stageError maps a pipeline error to its exit code.
func stageError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrInput):
		return codeError(exitInput, "%s", err)
	case errors.Is(err, pipeline.ErrProvider):
		return codeError(exitProvider, "%s", err)
	default:
		return codeError(exitGeneration, "%s", err)
	}
}

// globalFlags are shared by every subcommand. Only flags the user actually
// set override the config file and environment.
type globalFlags struct {
	configPath    string
	outDir        string
	profileName   string
	model         string
	embedModel    string
	dedupe        bool
	dupThreshold  float64
	batchLLMSize  int
	llmInnerBatch int
	minAlignment  float64
	timeout       time.Duration
	testMode      bool
	format        string
	metricsOut    string
	verbose       bool
	debug         bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	root := newRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		// cobra already printed the error
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:           "storytrace",
		Short:         "Turn requirement documents into traceable user stories and tests",
		Long:          "Storytrace segments a requirements document, drafts one user story per requirement with a language model, and traces every requirement through stories and test cases to coverage and compliance reports.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.PersistentFlags()
	f.StringVar(&flags.configPath, "config", "", "YAML config file")
	f.StringVar(&flags.outDir, "out-dir", "", "Directory for artifacts (default \"out\")")
	f.StringVar(&flags.profileName, "profile", "", "Constraint profile: general, hipaa, fda-part11, samd")
	f.StringVar(&flags.model, "model", "", "Language model as provider:model (e.g. openai:gpt-4o-mini)")
	f.StringVar(&flags.embedModel, "embed-model", "", "Embedder as openai:<model> or lexical")
	f.BoolVar(&flags.dedupe, "dedupe", true, "Collapse near-duplicate stories")
	f.Float64Var(&flags.dupThreshold, "dup-threshold", 0.99, "Cosine similarity at which stories are duplicates")
	f.IntVar(&flags.batchLLMSize, "batch-llm-size", 20, "Requirements per outer generation chunk")
	f.IntVar(&flags.llmInnerBatch, "llm-inner-batch", 5, "Concurrent model calls per batch")
	f.Float64Var(&flags.minAlignment, "min-alignment", 0.15, "Minimum citation alignment before a story needs review")
	f.DurationVar(&flags.timeout, "timeout", 60*time.Second, "Shared deadline for each batch of model calls")
	f.BoolVar(&flags.testMode, "test-mode", false, "Only process the first requirements of the document")
	f.StringVar(&flags.format, "format", "", "Run summary format: json or md")
	f.StringVar(&flags.metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")
	f.BoolVar(&flags.verbose, "verbose", false, "Log processing steps to stderr")
	f.BoolVar(&flags.debug, "debug", false, "Log debug detail, including raw model output, to stderr")

	root.AddCommand(
		&cobra.Command{
			Use:   "extract <document>",
			Short: "Segment a document and generate reviewed, deduplicated stories",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStage(cmd, &flags, needProvider|wantEmbedder, func(e *env) error {
					return e.extract(cmd, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "testcases",
			Short: "Generate Gherkin features and testcases.csv from stories.json",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStage(cmd, &flags, 0, func(e *env) error {
					_, err := e.pipeline.TestCases()
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "coverage",
			Short: "Compute the requirement coverage matrix and epic rollup",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStage(cmd, &flags, 0, func(e *env) error {
					_, err := e.pipeline.Coverage()
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "compliance",
			Short: "Find missing regulatory controls per story",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStage(cmd, &flags, wantEmbedder, func(e *env) error {
					_, err := e.pipeline.Compliance(cmd.Context())
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "run <document>",
			Short: "Run extract, testcases, coverage and compliance in order",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStage(cmd, &flags, needProvider|wantEmbedder, func(e *env) error {
					return e.run(cmd, args[0])
				})
			},
		},
		newProfilesCmd(),
	)
	return root
}

// applyFlags layers explicitly set flags over cfg.
func applyFlags(cmd *cobra.Command, flags *globalFlags, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("out-dir") {
		cfg.Output.Dir = flags.outDir
	}
	if set("profile") {
		cfg.Profile.Name = flags.profileName
	}
	if set("model") {
		cfg.Model.Name = flags.model
	}
	if set("embed-model") {
		cfg.Model.Embed = flags.embedModel
	}
	if set("dedupe") {
		cfg.Pipeline.Dedupe = flags.dedupe
	}
	if set("dup-threshold") {
		cfg.Pipeline.DupThreshold = flags.dupThreshold
	}
	if set("batch-llm-size") {
		cfg.Pipeline.BatchLLMSize = flags.batchLLMSize
	}
	if set("llm-inner-batch") {
		cfg.Pipeline.LLMInnerBatch = flags.llmInnerBatch
	}
	if set("min-alignment") {
		cfg.Pipeline.MinAlignment = flags.minAlignment
	}
	if set("timeout") {
		cfg.Model.Timeout = flags.timeout
	}
	if set("test-mode") {
		cfg.Pipeline.TestMode = flags.testMode
	}
	if set("format") {
		cfg.Output.Format = flags.format
	}
	if set("metrics-out") {
		cfg.Output.MetricsPath = flags.metricsOut
	}
}
