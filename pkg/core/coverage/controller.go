// Package coverage runs the multi-pass structuring loop. Each iteration
// analyzes the typed batches with the LLM, tabulates the facts through the
// mapper and merge engine, then asks a verifier how much of the source the
// records cover. The loop repeats until the score clears the threshold (after
// a minimum number of passes) or the iteration cap is reached.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/chunk"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/extract"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/mapper"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/merge"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/metrics"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

type State string

const (
	StateInit       State = "init"
	StateAnalyzing  State = "analyzing"
	StateTabulating State = "tabulating"
	StateVerifying  State = "verifying"
	StateDone       State = "done"
)

const (
	DefaultMaxIterations    = 3
	DefaultMinIterations    = 2
	DefaultThreshold        = 95.0
	DefaultBatchConcurrency = 3
	DefaultMaxHints         = 20

	roleStructurer = "structurer"
	roleVerifier   = "verifier"
)

type Structurer interface {
	Structure(ctx context.Context, req extract.StructureRequest) ([]models.Fact, error)
}

type Verifier interface {
	Verify(ctx context.Context, source string, records []models.Record, iteration int) (extract.Verification, error)
}

type Merger interface {
	Merge(ctx context.Context, tables, kvs, narrative []models.Record) (merge.Result, error)
}

type Config struct {
	MaxIterations int
	// MinIterations passes run even when the first score clears Threshold.
	MinIterations    int
	Threshold        float64
	BatchConcurrency int
	RetryDelay       time.Duration
	// MaxHints caps the missing-information list handed to the next pass.
	MaxHints int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MinIterations <= 0 {
		c.MinIterations = DefaultMinIterations
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = DefaultBatchConcurrency
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Millisecond
	}
	if c.MaxHints <= 0 {
		c.MaxHints = DefaultMaxHints
	}
	return c
}

// Input is everything one run needs. Source defaults to the batches
// rendered back to text.
type Input struct {
	Batches    chunk.Batches
	Source     string
	PageIssues []merge.PageIssue
}

// Iteration is the audit record of one pass.
type Iteration struct {
	Index           int             `json:"index"`
	Score           float64         `json:"coverage_score"`
	Missing         []string        `json:"missing_information"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Records         []models.Record `json:"-"`
	RecordCount     int             `json:"record_count"`
	Facts           int             `json:"facts"`
	Report          merge.Report    `json:"qa"`
	Failed          bool            `json:"failed"`
	Error           string          `json:"error,omitempty"`
	DurationMs      int64           `json:"duration_ms"`
}

type Outcome struct {
	Records []models.Record `json:"records"`
	Report  merge.Report    `json:"qa"`
	Score   float64         `json:"coverage_score"`
	// Final is the index of the iteration whose records were returned.
	Final   int         `json:"final_iteration"`
	History []Iteration `json:"iterations"`
}

type Controller struct {
	structurer Structurer
	verifier   Verifier
	merger     Merger
	cfg        Config
	metrics    *metrics.Metrics
}

func NewController(s Structurer, v Verifier, m Merger, cfg Config, mtr *metrics.Metrics) *Controller {
	return &Controller{structurer: s, verifier: v, merger: m, cfg: cfg.withDefaults(), metrics: mtr}
}

// shouldContinue decides the transition after iteration i completes.
func (c *Controller) shouldContinue(i int, score float64) bool {
	done := i + 1
	return done < c.cfg.MaxIterations && !(score >= c.cfg.Threshold && done >= c.cfg.MinIterations)
}

// Run drives the loop to Done. Bad LLM responses fail an iteration, never the
// run; the only error is context cancellation, in which case no records are
// returned.
func (c *Controller) Run(ctx context.Context, in Input, events *Stream) (Outcome, error) {
	log := logger.FromContext(ctx)
	if in.Source == "" {
		in.Source = in.Batches.SourceText()
	}

	r := &run{log: log, events: events, state: StateInit}
	baseline, alloc := mapper.MapBatches(in.Batches)

	var (
		history  []Iteration
		missing  []string
		failures int
	)
	for i := 0; i < c.cfg.MaxIterations; i++ {
		it, err := c.iterate(ctx, r, i, in, baseline, alloc, missing)
		if err != nil {
			return Outcome{}, err
		}
		history = append(history, it)
		c.metrics.Iteration(it.Failed, it.Score)
		r.publish(Event{Type: EventIterationEnd, Iteration: i, Score: it.Score, Detail: iterationDetail(it), TimingMs: it.DurationMs})

		if it.Failed {
			failures++
		} else {
			failures = 0
		}
		if failures >= 2 {
			log.Warn("two consecutive failed iterations, stopping", "iteration", i)
			break
		}
		if !c.shouldContinue(i, it.Score) {
			break
		}
		missing = nextMissing(it, c.cfg.MaxHints)
	}
	r.enter(StateDone)

	final := selectFinal(history)
	chosen := history[final]
	out := Outcome{
		Records: chosen.Records,
		Report:  chosen.Report,
		Score:   chosen.Score,
		Final:   final,
		History: history,
	}
	r.publish(Event{
		Type:      EventFinal,
		Iteration: final,
		Score:     chosen.Score,
		Detail:    fmt.Sprintf("%d records after %d iterations", len(chosen.Records), len(history)),
	})
	log.Info("coverage loop done", "iterations", len(history), "final", final, "score", chosen.Score, "records", len(chosen.Records))
	return out, nil
}

type run struct {
	log    logger.Logger
	events *Stream
	state  State
}

func (r *run) enter(s State) {
	r.log.Debug("coverage state", "from", r.state, "to", s)
	r.state = s
}

func (r *run) publish(e Event) { r.events.Publish(e) }

func (c *Controller) iterate(ctx context.Context, r *run, i int, in Input, baseline mapper.Mapped, alloc *mapper.Allocator, missing []string) (Iteration, error) {
	start := time.Now()
	defer c.metrics.Since("iteration", start)
	log := r.log.With("iteration", i)
	it := Iteration{Index: i}
	r.publish(Event{Type: EventIterationStart, Iteration: i, Detail: fmt.Sprintf("%d missing hints", len(missing))})

	r.enter(StateAnalyzing)
	step := time.Now()
	facts, failed, attempted := c.analyze(ctx, i, in.Batches, missing)
	if err := ctx.Err(); err != nil {
		return it, err
	}
	it.Facts = len(facts)
	for _, f := range failed {
		it.Missing = append(it.Missing, fmt.Sprintf("%s batch could not be structured: %v", f.section, f.err))
	}
	if attempted > 0 && len(failed) == attempted {
		it.Failed = true
		it.Error = "all structuring calls failed"
		r.publish(Event{Type: EventStepError, Iteration: i, Step: StepAnalyze, Detail: it.Error, TimingMs: since(step)})
		log.Warn("structuring failed for every batch", "batches", attempted)
	} else {
		r.publish(Event{Type: EventStepComplete, Iteration: i, Step: StepAnalyze, Detail: fmt.Sprintf("%d facts from %d batches", len(facts), attempted), TimingMs: since(step)})
	}

	r.enter(StateTabulating)
	step = time.Now()
	mapped, skipped := mapper.MapFacts(facts, alloc.Clone())
	if skipped > 0 {
		log.Warn("facts skipped during mapping", "skipped", skipped)
	}
	all := baseline.Append(mapped)
	res, err := c.merger.Merge(ctx, all.Tables, all.KeyValues, all.Narrative)
	if err != nil {
		return it, err
	}
	res.Report.PageIssues = in.PageIssues
	it.Records = res.Records
	it.RecordCount = len(res.Records)
	it.Report = res.Report
	r.publish(Event{Type: EventStepComplete, Iteration: i, Step: StepTabulate, Detail: fmt.Sprintf("%d records, %d duplicates removed", len(res.Records), res.Report.DuplicatesRemoved), TimingMs: since(step)})

	if !it.Failed {
		r.enter(StateVerifying)
		step = time.Now()
		v, err := c.verify(ctx, in.Source, it.Records, i)
		switch {
		case ctx.Err() != nil:
			return it, ctx.Err()
		case err != nil:
			it.Failed = true
			it.Score = 0
			it.Error = fmt.Sprintf("verify: %v", err)
			r.publish(Event{Type: EventStepError, Iteration: i, Step: StepVerify, Detail: it.Error, TimingMs: since(step)})
			log.Warn("verification failed", "error", err)
		default:
			it.Score = v.Score
			it.Missing = append(append([]string(nil), v.Missing...), it.Missing...)
			it.Recommendations = v.Recommendations
			r.publish(Event{Type: EventStepComplete, Iteration: i, Step: StepVerify, Score: v.Score, Detail: fmt.Sprintf("%d items missing", len(v.Missing)), TimingMs: since(step)})
		}
	}

	it.DurationMs = since(start)
	log.Info("iteration complete", "score", it.Score, "records", it.RecordCount, "failed", it.Failed)
	return it, nil
}

type batchFailure struct {
	section models.Section
	err     error
}

// analyze structures every non-empty batch in parallel. Results are joined
// in section order so arrival order never matters.
func (c *Controller) analyze(ctx context.Context, i int, b chunk.Batches, missing []string) ([]models.Fact, []batchFailure, int) {
	var sections []models.Section
	for _, s := range models.Sections {
		if b.Has(s) {
			sections = append(sections, s)
		}
	}

	type result struct {
		facts []models.Fact
		err   error
	}
	results := make([]result, len(sections))
	var g errgroup.Group
	g.SetLimit(c.cfg.BatchConcurrency)
	for idx, s := range sections {
		g.Go(func() error {
			facts, err := c.structure(ctx, extract.StructureRequest{
				Section:      s,
				Payload:      b.Payload(s),
				Iteration:    i,
				Missing:      missing,
				FallbackPage: firstPage(b, s),
			})
			results[idx] = result{facts: facts, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		facts  []models.Fact
		failed []batchFailure
	)
	for idx, res := range results {
		if res.err != nil {
			failed = append(failed, batchFailure{section: sections[idx], err: res.err})
			continue
		}
		facts = append(facts, res.facts...)
	}
	return facts, failed, len(sections)
}

// structure calls the structurer, retrying once with the strict prompt.
func (c *Controller) structure(ctx context.Context, req extract.StructureRequest) ([]models.Fact, error) {
	var (
		facts   []models.Fact
		attempt int
		lastErr error
	)
	backoff := retry.WithMaxRetries(1, retry.NewConstant(c.cfg.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r := req
		if attempt > 0 {
			r.Strict = true
			r.PreviousError = lastErr.Error()
			logger.FromContext(ctx).Debug("retrying structuring with strict prompt", "section", req.Section, "error", lastErr)
		}
		attempt++
		out, err := c.structurer.Structure(ctx, r)
		c.metrics.LLMCall(roleStructurer, err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			return retry.RetryableError(err)
		}
		facts = out
		return nil
	})
	return facts, err
}

func (c *Controller) verify(ctx context.Context, source string, records []models.Record, i int) (extract.Verification, error) {
	var v extract.Verification
	backoff := retry.WithMaxRetries(1, retry.NewConstant(c.cfg.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := c.verifier.Verify(ctx, source, records, i)
		c.metrics.LLMCall(roleVerifier, err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(err)
		}
		v = out
		return nil
	})
	return v, err
}

// selectFinal returns the last iteration unless it failed, then the best
// non-failed one (highest score, later wins ties). When every iteration
// failed the last one still carries the deterministic baseline.
func selectFinal(history []Iteration) int {
	last := len(history) - 1
	if !history[last].Failed {
		return last
	}
	best := -1
	for i, it := range history {
		if it.Failed {
			continue
		}
		if best < 0 || it.Score >= history[best].Score {
			best = i
		}
	}
	if best < 0 {
		return last
	}
	return best
}

// nextMissing merges the verifier's list with QA hints, without repeats.
func nextMissing(it Iteration, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range append(append([]string(nil), it.Missing...), it.Report.MissingHints(limit)...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

func firstPage(b chunk.Batches, s models.Section) int {
	switch {
	case s == models.SectionTable && len(b.Tables) > 0:
		return b.Tables[0].Page
	case s == models.SectionKeyValue && len(b.KeyValues) > 0:
		return b.KeyValues[0].Page
	case s == models.SectionNarrative && len(b.Narrative) > 0:
		return b.Narrative[0].Page
	}
	return 1
}

func iterationDetail(it Iteration) string {
	if it.Failed {
		return "failed: " + it.Error
	}
	return fmt.Sprintf("%d records", it.RecordCount)
}

func since(t time.Time) int64 { return time.Since(t).Milliseconds() }

// IsCancelled reports whether err ended a run through cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
