// Package pipeline runs one document end to end: page extraction, batch
// partitioning, the coverage loop (or a single deterministic pass when
// offline), and the final schema validation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/chunk"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/coverage"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/ingest"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/mapper"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/merge"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/metrics"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/validate"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

// Extractor produces the per-page raw blocks of a document.
type Extractor interface {
	Extract(ctx context.Context, jobID string, doc ingest.DocumentAnalyzer) ([]models.PageBlocks, error)
}

// Loop is the multi-pass structuring stage.
type Loop interface {
	Run(ctx context.Context, in coverage.Input, events *coverage.Stream) (coverage.Outcome, error)
}

// Session is the per-request context: created when a document arrives and
// discarded with the response. Nothing in it is shared across documents.
type Session struct {
	JobID   string
	Started time.Time
	Log     logger.Logger
	Events  *coverage.Stream
}

func NewSession(log logger.Logger, eventBuffer int) *Session {
	jobID := uuid.NewString()
	return &Session{
		JobID:   jobID,
		Started: time.Now(),
		Log:     log.With("job_id", jobID),
		Events:  coverage.NewStream(eventBuffer),
	}
}

// Result is what the export layer receives.
type Result struct {
	JobID         string               `json:"job_id"`
	Records       []models.Record      `json:"records"`
	QA            merge.Report         `json:"qa"`
	Validation    validate.Result      `json:"validation"`
	CoverageScore float64              `json:"coverage_score"`
	Iterations    []coverage.Iteration `json:"iterations"`
	Pages         int                  `json:"pages"`
	Offline       bool                 `json:"offline,omitempty"`
	DurationMs    int64                `json:"duration_ms"`
}

type Orchestrator struct {
	extractor Extractor
	loop      Loop
	merger    coverage.Merger
	validator *validate.Validator
	metrics   *metrics.Metrics
	chunking  chunk.Options
}

// NewOrchestrator wires the stages. A nil loop runs offline: the raw
// batches are mapped and merged once with no LLM involvement. A nil
// validator falls back to the field-level checks only.
func NewOrchestrator(extractor Extractor, loop Loop, merger coverage.Merger, validator *validate.Validator, m *metrics.Metrics, chunking chunk.Options) *Orchestrator {
	return &Orchestrator{
		extractor: extractor,
		loop:      loop,
		merger:    merger,
		validator: validator,
		metrics:   m,
		chunking:  chunking,
	}
}

func (o *Orchestrator) Offline() bool { return o.loop == nil }

// Run processes one document. It closes the session's event stream on
// return. Only a document with no content at all, or cancellation, is an
// error; every other failure is reported inside the Result.
func (o *Orchestrator) Run(ctx context.Context, s *Session, doc ingest.DocumentAnalyzer) (*Result, error) {
	defer s.Events.Close()
	ctx = logger.ContextWithLogger(ctx, s.Log)
	log := s.Log

	log.Info("extracting pages", "pages", doc.NumPages())
	pages, err := o.extractor.Extract(ctx, s.JobID, doc)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	issues := pageIssues(pages)

	start := time.Now()
	batches := chunk.PartitionPages(pages, o.chunking)
	o.metrics.Since("chunk", start)
	log.Info("batches ready", "tables", len(batches.Tables), "key_values", len(batches.KeyValues), "chunks", len(batches.Narrative), "page_issues", len(issues))

	var outcome coverage.Outcome
	if o.loop == nil {
		outcome, err = o.baseline(ctx, batches, issues)
	} else {
		outcome, err = o.loop.Run(ctx, coverage.Input{Batches: batches, PageIssues: issues}, s.Events)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	validation := validate.Check(outcome.Records)
	if o.validator != nil {
		validation = o.validator.Validate(outcome.Records)
	}
	if !validation.Valid {
		log.Warn("schema validation reported errors", "errors", len(validation.Errors))
	}
	o.record(outcome)

	res := &Result{
		JobID:         s.JobID,
		Records:       outcome.Records,
		QA:            outcome.Report,
		Validation:    validation,
		CoverageScore: outcome.Score,
		Iterations:    outcome.History,
		Pages:         len(pages),
		Offline:       o.loop == nil,
		DurationMs:    time.Since(s.Started).Milliseconds(),
	}
	if res.Records == nil {
		res.Records = []models.Record{}
	}
	log.Info("document processed", "records", len(res.Records), "coverage", res.CoverageScore, "qa_failed", res.QA.Failed)
	return res, nil
}

func (o *Orchestrator) baseline(ctx context.Context, batches chunk.Batches, issues []merge.PageIssue) (coverage.Outcome, error) {
	mapped, _ := mapper.MapBatches(batches)
	res, err := o.merger.Merge(ctx, mapped.Tables, mapped.KeyValues, mapped.Narrative)
	if err != nil {
		return coverage.Outcome{}, err
	}
	res.Report.PageIssues = issues
	return coverage.Outcome{Records: res.Records, Report: res.Report}, nil
}

func (o *Orchestrator) record(out coverage.Outcome) {
	counts := make(map[models.Section]int)
	for _, r := range out.Records {
		counts[r.Section]++
	}
	for _, s := range models.Sections {
		o.metrics.Records(string(s), counts[s])
	}
	o.metrics.Duplicates(out.Report.DuplicatesRemoved)
	for _, f := range out.Report.Failures {
		o.metrics.QAFailure(string(f.Check), string(f.Severity))
	}
}

func pageIssues(pages []models.PageBlocks) []merge.PageIssue {
	var issues []merge.PageIssue
	for _, p := range pages {
		if !p.Skipped && !p.TextOnly {
			continue
		}
		issues = append(issues, merge.PageIssue{Page: p.Page, Skipped: p.Skipped, TextOnly: p.TextOnly, Reason: p.Error})
	}
	return issues
}
