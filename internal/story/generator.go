// Package story turns segmented requirements into validated user stories by
// prompting a language model with retrieved source context.
package story

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/storytrace/internal/llm"
	"github.com/dshills/storytrace/internal/logging"
	"github.com/dshills/storytrace/internal/metrics"
	"github.com/dshills/storytrace/internal/profile"
	"github.com/dshills/storytrace/internal/redact"
	"github.com/dshills/storytrace/internal/retrieval"
	"github.com/dshills/storytrace/internal/schema"
	"github.com/dshills/storytrace/internal/schema/validate"
)

// Defaults for Options fields left at zero.
const (
	DefaultBatchSize    = 20
	DefaultInnerBatch   = 5
	DefaultTimeout      = 60 * time.Second
	DefaultTopK         = 3
	DefaultSnippetChars = 500
)

// Options configures a Generator.
type Options struct {
	// Index supplies context snippets; nil disables retrieval.
	Index *retrieval.Index
	// Profile supplies glossary, actors, constraints and authoring rules.
	Profile *profile.Profile

	BatchSize    int           // requirements per outer chunk
	InnerBatch   int           // concurrent model calls per batch
	Timeout      time.Duration // shared deadline per inner batch
	TopK         int           // snippets retrieved per requirement
	SnippetChars int           // max characters per snippet
	Temperature  float64
	MaxTokens    int

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.InnerBatch <= 0 {
		o.InnerBatch = DefaultInnerBatch
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.SnippetChars <= 0 {
		o.SnippetChars = DefaultSnippetChars
	}
	if o.Profile == nil {
		o.Profile, _ = profile.Get("general")
	}
	return o
}

// Outcome records what happened to one requirement's generation attempt.
type Outcome struct {
	ReqID string
	Kind  string // one of the metrics.Outcome* values
	Err   error
}

// Result carries the requirements consumed together with the stories
// produced from them and the per-requirement outcomes, all in input order.
type Result struct {
	Requirements []schema.Requirement
	Stories      []schema.Story
	Outcomes     []Outcome
}

// Tally counts outcomes by kind.
func (r *Result) Tally() schema.OutcomeTally {
	var t schema.OutcomeTally
	for _, o := range r.Outcomes {
		switch o.Kind {
		case metrics.OutcomeGenerated:
			t.Generated++
		case metrics.OutcomeAbstained:
			t.Abstained++
		case metrics.OutcomeMalformed:
			t.Malformed++
		case metrics.OutcomeInvalid:
			t.Invalid++
		case metrics.OutcomeTimeout:
			t.TimedOut++
		case metrics.OutcomeError:
			t.Failed++
		}
	}
	return t
}

// Generator produces stories from requirements.
type Generator struct {
	provider llm.Provider
	opts     Options
	system   string
	log      *slog.Logger
	newID    func() string
}

// New returns a Generator calling p.
func New(p llm.Provider, opts Options) *Generator {
	opts = opts.withDefaults()
	return &Generator{
		provider: p,
		opts:     opts,
		system:   llm.BuildSystemPrompt(opts.Profile),
		log:      logging.Component(opts.Logger, "story"),
		newID:    uuid.NewString,
	}
}

// Generate runs every requirement through the model, chunk by chunk and
// batch by batch. Malformed, invalid, abstained and timed-out responses
// produce no story and are recorded as outcomes. A retrieval failure or a
// cancelled ctx aborts the run.
func (g *Generator) Generate(ctx context.Context, reqs []schema.Requirement) (*Result, error) {
	res := &Result{Requirements: reqs}
	for start := 0; start < len(reqs); start += g.opts.BatchSize {
		chunk := reqs[start:min(start+g.opts.BatchSize, len(reqs))]
		g.log.Info("generating chunk", "from", start, "size", len(chunk))
		for i := 0; i < len(chunk); i += g.opts.InnerBatch {
			batch := chunk[i:min(i+g.opts.InnerBatch, len(chunk))]
			if err := g.runBatch(ctx, batch, res); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (g *Generator) runBatch(ctx context.Context, batch []schema.Requirement, res *Result) error {
	reqs := make([]*llm.Request, len(batch))
	for i, r := range batch {
		prompt, err := g.userPrompt(ctx, r)
		if err != nil {
			return err
		}
		reqs[i] = &llm.Request{
			SystemPrompt: g.system,
			UserPrompt:   prompt,
			Temperature:  g.opts.Temperature,
			MaxTokens:    g.opts.MaxTokens,
			JSON:         true,
		}
	}

	out := llm.Gather(ctx, g.provider, reqs, g.opts.Timeout)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("generation cancelled: %w", err)
	}
	if out.TimedOut {
		g.opts.Metrics.BatchTimeout()
		g.log.Warn("batch timed out, skipping", "size", len(batch), "timeout", g.opts.Timeout)
	}

	for i, r := range batch {
		call := out.Results[i]
		if !out.TimedOut {
			g.opts.Metrics.ObserveLLMCall(call.Duration)
		}
		o := g.collect(r, call, out.TimedOut, res)
		g.opts.Metrics.Outcome(o.Kind)
		res.Outcomes = append(res.Outcomes, o)
	}
	return nil
}

// collect parses one response and appends the story to res on success.
func (g *Generator) collect(r schema.Requirement, call llm.CallResult, timedOut bool, res *Result) Outcome {
	o := Outcome{ReqID: r.ReqID}
	switch {
	case timedOut:
		o.Kind, o.Err = metrics.OutcomeTimeout, call.Err
		return o
	case errors.Is(call.Err, llm.ErrTruncated):
		o.Kind, o.Err = metrics.OutcomeMalformed, call.Err
		g.log.Warn("story cut off at token limit", "req_id", r.ReqID, "error", call.Err)
		return o
	case call.Err != nil:
		o.Kind, o.Err = metrics.OutcomeError, call.Err
		g.log.Warn("model call failed", "req_id", r.ReqID, "error", call.Err)
		return o
	}

	s, err := validate.ParseStory(call.Content)
	if err != nil {
		var fe *validate.FieldError
		switch {
		case errors.Is(err, validate.ErrAbstain):
			o.Kind = metrics.OutcomeAbstained
			g.log.Info("model abstained", "req_id", r.ReqID)
		case errors.As(err, &fe):
			o.Kind = metrics.OutcomeInvalid
			g.log.Warn("invalid story", "req_id", r.ReqID, "path", fe.Path, "reason", fe.Reason, "raw", truncate(call.Content, 300))
		default:
			o.Kind = metrics.OutcomeMalformed
			g.log.Warn("malformed story JSON", "req_id", r.ReqID, "error", err, "raw", truncate(call.Content, 300))
		}
		o.Err = err
		return o
	}

	s.StoryID = g.newID()
	if len(s.SourceRequirementIDs) == 0 {
		s.SourceRequirementIDs = []string{r.ReqID}
	}
	if s.Epic == "" {
		s.Epic = r.Epic
	}
	fillEmpty(s)
	res.Stories = append(res.Stories, *s)
	o.Kind = metrics.OutcomeGenerated
	return o
}

func (g *Generator) userPrompt(ctx context.Context, r schema.Requirement) (string, error) {
	var snippets []schema.Citation
	if g.opts.Index != nil {
		hits, err := g.opts.Index.Retrieve(ctx, r.Text, g.opts.TopK)
		if err != nil {
			return "", fmt.Errorf("retrieving context for %s: %w", r.ReqID, err)
		}
		snippets = make([]schema.Citation, len(hits))
		for i, h := range hits {
			snippets[i] = schema.Citation{Page: h.Page, Snippet: capRunes(h.Text, g.opts.SnippetChars)}
		}
	}

	if kinds := redact.Kinds(r.Text); len(kinds) > 0 {
		g.log.Debug("redacted requirement text", "req_id", r.ReqID, "kinds", kinds)
	}
	p := g.opts.Profile
	return llm.BuildUserPrompt(llm.StoryPrompt{
		Requirement: schema.Requirement{ReqID: r.ReqID, Text: redact.Redact(r.Text), Epic: r.Epic},
		Glossary:    p.Glossary,
		Actors:      p.Actors,
		Constraints: p.Constraints,
		Snippets:    redact.Citations(snippets),
	}), nil
}

// fillEmpty replaces nil list fields with empty lists so stories serialize
// with [] rather than null.
func fillEmpty(s *schema.Story) {
	for _, l := range []*[]string{&s.Dependencies, &s.NonFunctional, &s.SourceRequirementIDs, &s.Assumptions, &s.OpenQuestions} {
		if *l == nil {
			*l = []string{}
		}
	}
	if s.AcceptanceCriteria == nil {
		s.AcceptanceCriteria = []schema.AcceptanceCriterion{}
	}
	if s.Citations == nil {
		s.Citations = []schema.Citation{}
	}
}

func capRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
