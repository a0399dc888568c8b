package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"complaintrag/internal/domain"
	"complaintrag/internal/logger"
	"complaintrag/internal/prompt"
)

// PipelineOptions sets how much is retrieved and how much of it is shown to
// the generator. PromptExcerpts == 0 shows everything retrieved.
type PipelineOptions struct {
	TopK           int
	PromptExcerpts int
}

// Evidence is the outcome of the retrieval phase of one question.
type Evidence struct {
	// Sources holds every retrieved hit, nearest first.
	Sources []domain.SearchHit
	// Excerpts is the prefix of Sources' texts, whitespace-trimmed, exactly
	// as given to the generator.
	Excerpts []string
}

// Result is the outcome of one Run.
type Result struct {
	Question string
	Answer   string
	Evidence
	Elapsed time.Duration
}

// Pipeline answers a question by retrieving excerpts, building a grounded
// prompt from them and asking the generator.
type Pipeline struct {
	log            *logger.Logger
	retriever      domain.Retriever
	generator      domain.Generator
	topK           int
	promptExcerpts int
}

func NewPipeline(log *logger.Logger, retriever domain.Retriever, generator domain.Generator, opts PipelineOptions) (*Pipeline, error) {
	if opts.TopK <= 0 {
		return nil, domain.ConfigurationErrorf("top_k must be positive, got %d", opts.TopK)
	}
	if opts.PromptExcerpts < 0 {
		return nil, domain.ConfigurationErrorf("prompt_excerpts must be >= 0, got %d", opts.PromptExcerpts)
	}
	return &Pipeline{
		log:            log.With("service", "Pipeline"),
		retriever:      retriever,
		generator:      generator,
		topK:           opts.TopK,
		promptExcerpts: opts.PromptExcerpts,
	}, nil
}

// Run retrieves, prompts and generates. The returned Excerpts are exactly
// the ones the prompt was built from. On a generation failure the evidence
// is still returned alongside the *domain.GenerationError so the caller can
// retry with Answer alone; Answer is never filled on failure.
func (p *Pipeline) Run(ctx context.Context, question string) (Result, error) {
	start := time.Now()
	res := Result{Question: question}
	ev, err := p.Evidence(ctx, question)
	if err != nil {
		return res, err
	}
	res.Evidence = ev
	answer, err := p.Answer(ctx, question, ev.Excerpts)
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, err
	}
	res.Answer = answer
	p.log.Info("answered", "sources", len(ev.Sources), "excerpts", len(ev.Excerpts), "elapsed", res.Elapsed)
	return res, nil
}

// Evidence runs the retrieval phase only.
func (p *Pipeline) Evidence(ctx context.Context, question string) (Evidence, error) {
	hits, err := p.retriever.Search(ctx, question, p.topK)
	if err != nil {
		p.log.Warn("retrieval failed", "error", err)
		return Evidence{}, err
	}
	n := len(hits)
	if p.promptExcerpts > 0 && p.promptExcerpts < n {
		n = p.promptExcerpts
	}
	excerpts := make([]string, n)
	for i := range excerpts {
		excerpts[i] = strings.TrimSpace(hits[i].Record.Text)
	}
	return Evidence{Sources: hits, Excerpts: excerpts}, nil
}

// Answer runs the generation phase over already retrieved excerpts.
func (p *Pipeline) Answer(ctx context.Context, question string, excerpts []string) (string, error) {
	text, err := p.generator.Generate(ctx, prompt.Build(excerpts, question))
	if err != nil {
		var ge *domain.GenerationError
		if !errors.As(err, &ge) {
			ge = &domain.GenerationError{Kind: domain.GenerationTransient, Model: p.generator.ModelID(), Cause: err}
		}
		return "", ge
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &domain.GenerationError{
			Kind:  domain.GenerationTransient,
			Model: p.generator.ModelID(),
			Cause: errors.New("generator returned empty text"),
		}
	}
	return text, nil
}
