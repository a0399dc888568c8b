package evaluation

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaintrag/internal/domain"
	"complaintrag/internal/logger"
	"complaintrag/internal/service"
)

type scriptedRunner struct {
	errs map[string]error
}

func (r scriptedRunner) Run(_ context.Context, q string) (service.Result, error) {
	res := service.Result{
		Question: q,
		Evidence: service.Evidence{
			Sources: []domain.SearchHit{
				{Position: 0, Record: domain.MetadataRecord{Text: "late fee | charged"}},
				{Position: 1, Record: domain.MetadataRecord{Text: "second\nexcerpt"}},
				{Position: 2, Record: domain.MetadataRecord{Text: "third"}},
			},
			Excerpts: []string{"late fee | charged", "second\nexcerpt"},
		},
		Elapsed: 15 * time.Millisecond,
	}
	if err := r.errs[q]; err != nil {
		return res, err
	}
	res.Answer = "Answer: " + q
	return res, nil
}

func TestEvaluateRecordsGenerationFailuresPerRow(t *testing.T) {
	genErr := &domain.GenerationError{Kind: domain.GenerationTransient, Model: "m", StatusCode: 503}
	ev := New(logger.NewNop(), scriptedRunner{errs: map[string]error{"q2": genErr}}, 2)

	rep, err := ev.Evaluate(context.Background(), []string{"q1", "q2", "q3"})
	require.NoError(t, err)
	_, err = uuid.Parse(rep.RunID)
	require.NoError(t, err)
	require.Len(t, rep.Rows, 3)
	assert.Equal(t, 1, rep.Failed())

	assert.Equal(t, "Answer: q1", rep.Rows[0].Answer)
	assert.Equal(t, []string{"late fee | charged", "second\nexcerpt"}, rep.Rows[0].Sources)
	assert.Empty(t, rep.Rows[1].Answer)
	assert.Contains(t, rep.Rows[1].Error, "transient")
	assert.Empty(t, rep.Rows[2].Error)
	assert.False(t, rep.FinishedAt.IsZero())
}

func TestEvaluateAbortsOnRetrievalFailure(t *testing.T) {
	ev := New(logger.NewNop(), scriptedRunner{errs: map[string]error{"q2": domain.RetrievalErrorf("boom")}}, 2)
	rep, err := ev.Evaluate(context.Background(), []string{"q1", "q2", "q3"})
	assert.ErrorIs(t, err, domain.ErrRetrieval)
	assert.Len(t, rep.Rows, 1)
}

func TestEvaluateListsPromptedEvidenceOnly(t *testing.T) {
	ev := New(logger.NewNop(), scriptedRunner{}, 0)
	rep, err := ev.Evaluate(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"late fee | charged", "second\nexcerpt"}, rep.Rows[0].Sources, "the third hit was never shown")

	ev = New(logger.NewNop(), scriptedRunner{}, 1)
	rep, err = ev.Evaluate(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"late fee | charged"}, rep.Rows[0].Sources)
}

func TestWriteMarkdownEscapesCells(t *testing.T) {
	rep := Report{
		RunID:     "run-1",
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Rows: []Row{
			{Question: "Any late fees?", Answer: "Answer: yes\nmany", Sources: []string{"a | b", "c"}},
			{Question: "Loans?", Error: "generation error (kind=transient model=m)"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, rep))
	out := buf.String()

	assert.Contains(t, out, "| Question | Generated Answer | Retrieved Sources | Error | Quality Score (1-5) | Comments/Analysis |")
	assert.Contains(t, out, `| Any late fees? | Answer: yes<br>many | a \| b<br>---<br>c |  |  |  |`)
	assert.Contains(t, out, "1 generation failures")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 8, "title and summary block, header, separator, 2 rows")
}

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	h, err := OpenHistory(ctx, filepath.Join(t.TempDir(), "db", "evaluation.db"))
	require.NoError(t, err)
	defer h.Close()

	ev := New(logger.NewNop(), scriptedRunner{errs: map[string]error{"q2": &domain.GenerationError{Kind: domain.GenerationUnavailable, Cause: errors.New("401")}}}, 2)
	rep, err := ev.Evaluate(ctx, []string{"q1", "q2"})
	require.NoError(t, err)
	require.NoError(t, h.Record(ctx, rep, "hashing-v1", "gemini-2.5-pro"))

	runs, err := h.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].RunID)
	assert.Equal(t, "hashing-v1", runs[0].EmbedderModel)
	assert.Equal(t, 2, runs[0].Questions)
	assert.Equal(t, 1, runs[0].Failed)
	assert.WithinDuration(t, rep.StartedAt, runs[0].StartedAt, 2*time.Second)

	rows, err := h.Answers(ctx, rep.RunID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Answer: q1", rows[0].Answer)
	assert.Equal(t, rep.Rows[0].Sources, rows[0].Sources)
	assert.Equal(t, 15*time.Millisecond, rows[0].Elapsed)
	assert.NotEmpty(t, rows[1].Error)

	assert.Error(t, h.Record(ctx, rep, "hashing-v1", "gemini-2.5-pro"), "run ids are unique")

	stored, err := h.Report(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, stored.RunID)
	assert.Len(t, stored.Rows, 2)
	assert.Equal(t, 1, stored.Failed())
	assert.WithinDuration(t, rep.FinishedAt, stored.FinishedAt, 2*time.Second)

	_, err = h.Report(ctx, "missing")
	assert.Error(t, err)
}
