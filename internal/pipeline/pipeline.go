// Package pipeline runs the storytrace stages against an output directory:
// extract (document to stories), test cases, coverage and compliance. Each
// stage reads its inputs from and writes its artifacts to the same directory,
// so stages can be run one at a time or all together.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dshills/storytrace/internal/artifact"
	"github.com/dshills/storytrace/internal/compliance"
	"github.com/dshills/storytrace/internal/config"
	"github.com/dshills/storytrace/internal/console"
	"github.com/dshills/storytrace/internal/coverage"
	"github.com/dshills/storytrace/internal/dedupe"
	"github.com/dshills/storytrace/internal/document"
	"github.com/dshills/storytrace/internal/embed"
	"github.com/dshills/storytrace/internal/llm"
	"github.com/dshills/storytrace/internal/logging"
	"github.com/dshills/storytrace/internal/metrics"
	"github.com/dshills/storytrace/internal/normalize"
	"github.com/dshills/storytrace/internal/profile"
	"github.com/dshills/storytrace/internal/render"
	"github.com/dshills/storytrace/internal/retrieval"
	"github.com/dshills/storytrace/internal/review"
	"github.com/dshills/storytrace/internal/schema"
	"github.com/dshills/storytrace/internal/segment"
	"github.com/dshills/storytrace/internal/story"
	"github.com/dshills/storytrace/internal/testcase"
)

// Error classes returned by the stages. Every stage error wraps exactly one.
var (
	// ErrInput covers unreadable documents, missing artifacts and bad settings.
	ErrInput = errors.New("input error")
	// ErrProvider covers language model and embedding provider failures.
	ErrProvider = errors.New("provider error")
	// ErrGeneration covers failures while producing or writing artifacts.
	ErrGeneration = errors.New("generation error")
)

// Tool is the name recorded in run summaries.
const Tool = "storytrace"

// Deps are the collaborators a Pipeline calls. Provider is needed by
// Extract only; Embedder by Extract when the document has pages or dedupe is
// on, and optionally by Compliance.
type Deps struct {
	Provider llm.Provider
	Embedder embed.Embedder
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Console  *console.Printer
	Version  string
}

// Pipeline runs stages with one configuration.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger
	out  *console.Printer
}

// New returns a Pipeline. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, deps Deps) *Pipeline {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  logging.Component(deps.Logger, "pipeline"),
		out:  deps.Console,
	}
}

func (p *Pipeline) path(name string) string {
	return filepath.Join(p.cfg.Output.Dir, name)
}

// ExtractResult is everything Extract produced, in addition to the files it
// wrote.
type ExtractResult struct {
	Requirements []schema.Requirement
	Stories      []schema.Story
	Duplicates   *dedupe.Report
	Summary      *schema.RunSummary
	// SummaryPath is the written summary file.
	SummaryPath string
}

// Extract loads docPath, segments it into requirements, generates and
// reviews stories, collapses duplicates and writes requirements.json,
// stories.json, duplicates.json and the run summary. Nothing is written
// unless every step succeeds.
func (p *Pipeline) Extract(ctx context.Context, docPath string) (*ExtractResult, error) {
	cfg := p.cfg
	if p.deps.Provider == nil {
		return nil, fmt.Errorf("%w: no language model provider configured", ErrProvider)
	}
	prof, err := profile.Get(cfg.Profile.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}
	prof = prof.WithOverrides(cfg.Profile.Constraints, cfg.Profile.Glossary, cfg.Profile.Actors)
	renderer, err := render.NewRenderer(cfg.Output.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	p.out.Title("extract %s", filepath.Base(docPath))
	doc, err := document.Load(docPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	var (
		pages []schema.Page
		text  string
	)
	if doc.HasPages() {
		pages = normalize.Pages(doc.Pages)
		text = normalize.Join(pages)
	} else {
		text = normalize.Text(doc.Text)
	}

	reqs := segment.Split(text)
	if cfg.Pipeline.TestMode && len(reqs) > cfg.Pipeline.TestModeLimit {
		p.log.Info("test mode: truncating requirements", "from", len(reqs), "to", cfg.Pipeline.TestModeLimit)
		reqs = reqs[:cfg.Pipeline.TestModeLimit]
	}
	p.deps.Metrics.Requirements(len(reqs))
	p.log.Info("segmented document", "requirements", len(reqs), "pages", len(pages))
	p.out.Info("%d requirements", len(reqs))

	var index *retrieval.Index
	if len(pages) > 0 {
		if err := p.requireEmbedder("retrieval index"); err != nil {
			return nil, err
		}
		chunks := retrieval.Chunks(pages, cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
		if index, err = retrieval.Build(ctx, p.deps.Embedder, chunks); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProvider, err)
		}
		p.log.Info("built retrieval index", "chunks", index.Len())
	}

	gen := story.New(p.deps.Provider, story.Options{
		Index:        index,
		Profile:      prof,
		BatchSize:    cfg.Pipeline.BatchLLMSize,
		InnerBatch:   cfg.Pipeline.LLMInnerBatch,
		Timeout:      cfg.Model.Timeout,
		TopK:         cfg.Retrieval.TopK,
		SnippetChars: cfg.Retrieval.SnippetChars,
		Temperature:  cfg.Model.Temperature,
		MaxTokens:    cfg.Model.MaxTokens,
		Logger:       p.deps.Logger,
		Metrics:      p.deps.Metrics,
	})
	res, err := gen.Generate(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	tally := res.Tally()
	p.out.Info("%d stories generated (%d abstained, %d malformed, %d invalid, %d timed out, %d failed)",
		tally.Generated, tally.Abstained, tally.Malformed, tally.Invalid, tally.TimedOut, tally.Failed)

	stories := res.Stories
	counts := review.Apply(stories, res.Requirements, cfg.Pipeline.MinAlignment)
	p.deps.Metrics.NeedsReview(counts.NeedsReview)
	if counts.NeedsReview > 0 {
		p.out.Warn("%d stories need review", counts.NeedsReview)
	}

	dups := &dedupe.Report{Threshold: cfg.Pipeline.DupThreshold, Pairs: []dedupe.Pair{}, Dropped: []dedupe.Drop{}}
	final := stories
	if cfg.Pipeline.Dedupe && len(stories) > 1 {
		if err := p.requireEmbedder("dedupe"); err != nil {
			return nil, err
		}
		if final, dups, err = dedupe.Run(ctx, p.deps.Embedder, stories, cfg.Pipeline.DupThreshold); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProvider, err)
		}
		p.deps.Metrics.DuplicatesDropped(len(dups.Dropped))
		p.log.Info("deduplicated stories", "pairs", len(dups.Pairs), "dropped", len(dups.Dropped))
	}
	if final == nil {
		final = []schema.Story{}
	}

	summary := &schema.RunSummary{
		Tool:    Tool,
		Version: p.deps.Version,
		Input: schema.RunInput{
			Document:     doc.Path,
			DocumentHash: doc.Hash,
			Pages:        len(pages),
			Profile:      prof.Name,
			TestMode:     cfg.Pipeline.TestMode,
			Dedupe:       cfg.Pipeline.Dedupe,
			DupThreshold: cfg.Pipeline.DupThreshold,
			MinAlignment: cfg.Pipeline.MinAlignment,
		},
		Counts: schema.RunCounts{
			Requirements:      len(reqs),
			GeneratedStories:  len(stories),
			Aligned:           counts.Aligned,
			NeedsReview:       counts.NeedsReview,
			DuplicatePairs:    len(dups.Pairs),
			DuplicatesDropped: len(dups.Dropped),
			FinalStories:      len(final),
		},
		Outcomes: tally,
		Meta: schema.RunMeta{
			Model:       cfg.Model.Name,
			EmbedModel:  cfg.Model.Embed,
			Temperature: cfg.Model.Temperature,
		},
	}
	rendered, err := renderer.Render(summary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	if reqs == nil {
		reqs = []schema.Requirement{}
	}
	summaryPath := p.path(summaryFile(renderer))
	var files artifact.Set
	files.AddJSON(p.path(artifact.RequirementsFile), reqs)
	files.AddJSON(p.path(artifact.StoriesFile), final)
	files.AddJSON(p.path(artifact.DuplicatesFile), dups)
	files.Add(summaryPath, rendered)
	if err := files.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	p.out.Success("wrote %d stories to %s", len(final), p.cfg.Output.Dir)

	return &ExtractResult{
		Requirements: reqs,
		Stories:      final,
		Duplicates:   dups,
		Summary:      summary,
		SummaryPath:  summaryPath,
	}, nil
}

func summaryFile(r render.Renderer) string {
	if r.Ext() == "md" {
		return artifact.SummaryMarkdownFile
	}
	return artifact.SummaryJSONFile
}

func (p *Pipeline) requireEmbedder(purpose string) error {
	if p.deps.Embedder == nil {
		return fmt.Errorf("%w: %s needs embeddings: %w", ErrProvider, purpose, embed.ErrUnavailable)
	}
	return nil
}

// TestCases reads stories.json and writes one Gherkin feature file per epic
// (or per story) under features/ plus testcases.csv.
func (p *Pipeline) TestCases() (*testcase.Result, error) {
	p.out.Title("testcases")
	stories, err := artifact.LoadStories(p.path(artifact.StoriesFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	res, err := testcase.Generate(stories, testcase.Options{PerStory: !p.cfg.Output.FeaturePerEpic})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	dir := p.path(artifact.FeaturesDir)
	for _, f := range res.Features {
		if err := artifact.WriteFile(filepath.Join(dir, f.FileName), f.Content); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
	}
	if err := artifact.WriteCSV(p.path(artifact.TestCasesFile), testcase.CSVHeader, testcase.Records(res.Cases)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	if len(res.Gaps) > 0 {
		p.log.Warn("requirements without scenarios", "count", len(res.Gaps), "req_ids", res.Gaps)
		p.out.Warn("%d requirements have no scenario", len(res.Gaps))
	}
	p.out.Success("wrote %d feature files and %d test cases", len(res.Features), len(res.Cases))
	return res, nil
}

// Coverage joins requirements, stories and test cases and writes
// coverage_matrix.csv and epic_coverage.csv.
func (p *Pipeline) Coverage() (*coverage.Report, error) {
	p.out.Title("coverage")
	rep, err := coverage.Load(
		p.path(artifact.RequirementsFile),
		p.path(artifact.StoriesFile),
		p.path(artifact.TestCasesFile),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	if err := artifact.WriteCSV(p.path(artifact.CoverageMatrixFile), coverage.MatrixHeader, coverage.MatrixRecords(rep.Rows)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if err := artifact.WriteCSV(p.path(artifact.EpicCoverageFile), coverage.EpicHeader, coverage.EpicRecords(rep.Epics)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	var uncovered int
	for _, r := range rep.Rows {
		if r.Status != schema.CoverageCovered {
			uncovered++
		}
	}
	p.log.Info("coverage computed", "rows", len(rep.Rows), "epics", len(rep.Epics), "uncovered", uncovered)
	if uncovered > 0 {
		p.out.Warn("%d of %d coverage rows are not covered", uncovered, len(rep.Rows))
	}
	p.out.Success("wrote coverage for %d epics", len(rep.Epics))
	return rep, nil
}

// Compliance retrieves the expected controls for every story, detects the
// controls its evidence mentions and writes compliance_evidence.csv.
func (p *Pipeline) Compliance(ctx context.Context) ([]schema.ComplianceRow, error) {
	p.out.Title("compliance")
	stories, err := artifact.LoadStories(p.path(artifact.StoriesFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}
	tests, err := testcase.Load(p.path(artifact.TestCasesFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInput, err)
	}

	opts := compliance.Options{
		TopK:          p.cfg.Compliance.TopK,
		EvidenceChars: p.cfg.Compliance.EvidenceChars,
		Logger:        p.deps.Logger,
		Metrics:       p.deps.Metrics,
	}
	var e embed.Embedder
	if p.cfg.Compliance.UseEmbeddings {
		e = p.deps.Embedder
	}
	r := compliance.NewRetriever(ctx, e, opts)
	if !r.Embedding() {
		p.out.Warn("compliance retrieval is using keyword matching")
	}

	rows := compliance.Analyze(ctx, r, stories, tests, opts)
	if err := artifact.WriteCSV(p.path(artifact.ComplianceEvidenceFile), compliance.Header, compliance.Records(rows)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	gaps := compliance.WithGaps(rows)
	p.log.Info("compliance analyzed", "stories", len(rows), "with_gaps", gaps)
	if gaps > 0 {
		p.out.Warn("%d stories are missing expected controls", gaps)
	}
	p.out.Success("wrote compliance evidence for %d stories", len(rows))
	return rows, nil
}

// RunResult collects the outputs of every stage.
type RunResult struct {
	Extract    *ExtractResult
	TestCases  *testcase.Result
	Coverage   *coverage.Report
	Compliance []schema.ComplianceRow
}

// Run executes Extract, TestCases, Coverage and Compliance in order,
// stopping at the first failing stage.
func (p *Pipeline) Run(ctx context.Context, docPath string) (*RunResult, error) {
	var (
		out RunResult
		err error
	)
	if out.Extract, err = p.Extract(ctx, docPath); err != nil {
		return &out, err
	}
	if out.TestCases, err = p.TestCases(); err != nil {
		return &out, err
	}
	if out.Coverage, err = p.Coverage(); err != nil {
		return &out, err
	}
	if out.Compliance, err = p.Compliance(ctx); err != nil {
		return &out, err
	}
	return &out, nil
}
