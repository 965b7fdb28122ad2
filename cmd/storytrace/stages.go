package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/storytrace/internal/config"
	"github.com/dshills/storytrace/internal/console"
	"github.com/dshills/storytrace/internal/embed"
	"github.com/dshills/storytrace/internal/llm"
	"github.com/dshills/storytrace/internal/logging"
	"github.com/dshills/storytrace/internal/metrics"
	"github.com/dshills/storytrace/internal/pipeline"
	"github.com/dshills/storytrace/internal/profile"
)

// needs lists the providers a subcommand builds before running.
type needs int

const (
	needProvider needs = 1 << iota
	// wantEmbedder builds the embedder when it can; stages that cannot work
	// without one fail with a provider error when they reach that step.
	wantEmbedder
)

// env is the resolved runtime of one subcommand.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	rec      *metrics.Recorder
	out      *console.Printer
	pipeline *pipeline.Pipeline
}

// runStage resolves configuration and providers, runs fn, and writes the
// metrics file when one was requested.
func runStage(cmd *cobra.Command, flags *globalFlags, n needs, fn func(*env) error) error {
	e, err := setup(cmd, flags, n)
	if err != nil {
		return err
	}
	runErr := fn(e)
	e.writeMetrics()
	if runErr != nil {
		return stageError(runErr)
	}
	return nil
}

func setup(cmd *cobra.Command, flags *globalFlags, n needs) (*env, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, codeError(exitInput, "%s", err)
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, codeError(exitInput, "loading config: %s", err)
	}
	applyFlags(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, codeError(exitInput, "invalid configuration: %s", err)
	}

	e := &env{
		cfg: cfg,
		log: logging.New(logging.Level(flags.verbose, flags.debug), cmd.ErrOrStderr()),
		out: console.New(cmd.OutOrStdout()),
	}
	if cfg.Output.MetricsPath != "" {
		e.rec = metrics.New()
	}
	e.log.Debug("configuration resolved", "model", cfg.Model.Name, "embed", cfg.Model.Embed, "profile", cfg.Profile.Name, "out_dir", cfg.Output.Dir)

	deps := pipeline.Deps{Logger: e.log, Metrics: e.rec, Console: e.out, Version: version}
	if n&needProvider != 0 {
		p, err := llm.NewProvider(cfg.Model.Name)
		if err != nil {
			return nil, codeError(exitProvider, "creating LLM provider: %s", err)
		}
		deps.Provider = p
	}
	if n&wantEmbedder != 0 && (cmd.Name() != "compliance" || cfg.Compliance.UseEmbeddings) {
		em, err := embed.New(cfg.Model.Embed)
		if err != nil {
			e.log.Warn("embedder unavailable", "embed", cfg.Model.Embed, "error", err)
		} else {
			deps.Embedder = em
		}
	}
	e.pipeline = pipeline.New(cfg, deps)
	return e, nil
}

func (e *env) extract(cmd *cobra.Command, docPath string) error {
	res, err := e.pipeline.Extract(cmd.Context(), docPath)
	if err != nil {
		return err
	}
	e.out.Info("summary written to %s", res.SummaryPath)
	return nil
}

func (e *env) run(cmd *cobra.Command, docPath string) error {
	res, err := e.pipeline.Run(cmd.Context(), docPath)
	if res != nil && res.Extract != nil {
		e.out.Info("summary written to %s", res.Extract.SummaryPath)
	}
	return err
}

// writeMetrics is advisory: a failed write is reported but never fails the run.
func (e *env) writeMetrics() {
	if e.rec == nil {
		return
	}
	if err := e.rec.WriteTextfile(e.cfg.Output.MetricsPath); err != nil {
		e.out.Warn("metrics write failed: %s", err)
		return
	}
	e.log.Info("metrics written", "path", e.cfg.Output.MetricsPath)
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in constraint profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range profile.Names() {
				p, err := profile.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Description)
			}
			return tw.Flush()
		},
	}
}
