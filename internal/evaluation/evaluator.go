// Package evaluation runs a fixed question set through the pipeline and
// records the answers for manual review.
package evaluation

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"complaintrag/internal/domain"
	"complaintrag/internal/logger"
	"complaintrag/internal/service"
)

// DefaultQuestions covers the product areas of the complaints dataset.
var DefaultQuestions = []string{
	"Why are customers frustrated with credit card charges?",
	"What issues do users report about loan applications?",
	"Are there complaints about Buy Now, Pay Later?",
	"Do customers complain about savings account closures?",
	"How often do users face money transfer failures?",
	"Are there any mentions of late fees?",
	"What are common disputes with customer support?",
	"Do people complain about app crashes or bugs?",
}

// Runner is the pipeline surface the evaluator needs.
type Runner interface {
	Run(ctx context.Context, question string) (service.Result, error)
}

// Row is one evaluated question. QualityScore and Comments are left empty
// for a human reviewer.
type Row struct {
	Question     string
	Answer       string
	Sources      []string
	Error        string
	QualityScore string
	Comments     string
	Elapsed      time.Duration
}

// Report is one evaluation run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Rows       []Row
}

// Failed counts rows whose generation failed.
func (r Report) Failed() int {
	n := 0
	for _, row := range r.Rows {
		if row.Error != "" {
			n++
		}
	}
	return n
}

type Evaluator struct {
	log          *logger.Logger
	runner       Runner
	sourcesShown int
}

// New creates an evaluator that lists the first sourcesShown retrieved
// excerpts per question (0 lists all of them).
func New(log *logger.Logger, runner Runner, sourcesShown int) *Evaluator {
	return &Evaluator{log: log.With("service", "Evaluator"), runner: runner, sourcesShown: sourcesShown}
}

// Evaluate runs every question in order. A generation failure is recorded
// on its row and the run continues; any other failure aborts the run.
func (e *Evaluator) Evaluate(ctx context.Context, questions []string) (Report, error) {
	rep := Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	for i, q := range questions {
		e.log.Info("evaluating", "n", i+1, "of", len(questions), "question", q)
		res, err := e.runner.Run(ctx, q)
		row := Row{Question: q, Answer: res.Answer, Sources: e.sources(res), Elapsed: res.Elapsed}
		if err != nil {
			if !errors.Is(err, domain.ErrGeneration) {
				return rep, err
			}
			row.Error = err.Error()
			e.log.Warn("generation failed", "question", q, "error", err)
		}
		rep.Rows = append(rep.Rows, row)
	}
	rep.FinishedAt = time.Now().UTC()
	return rep, nil
}

// sources lists the evidence the answer was generated from.
func (e *Evaluator) sources(res service.Result) []string {
	n := len(res.Excerpts)
	if e.sourcesShown > 0 && e.sourcesShown < n {
		n = e.sourcesShown
	}
	return slices.Clone(res.Excerpts[:n])
}
