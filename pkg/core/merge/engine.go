// Package merge concatenates mapped batches, normalizes units, removes
// near-duplicates, sorts canonically and runs the QA checks.
package merge

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/dedup"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/units"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

const DefaultFallbackConcurrency = 4

type Config struct {
	DedupThreshold      float64
	KnownContexts       []string // empty uses the default ontology
	FallbackConcurrency int
}

type Engine struct {
	normalizer  *units.Normalizer
	dedup       *dedup.Deduplicator
	ontology    *Ontology
	concurrency int
}

func NewEngine(normalizer *units.Normalizer, cfg Config) *Engine {
	ontology := DefaultOntology()
	if len(cfg.KnownContexts) > 0 {
		ontology = NewOntology(cfg.KnownContexts)
	}
	if cfg.FallbackConcurrency <= 0 {
		cfg.FallbackConcurrency = DefaultFallbackConcurrency
	}
	if normalizer == nil {
		normalizer = units.NewNormalizer(nil)
	}
	return &Engine{
		normalizer:  normalizer,
		dedup:       dedup.New(cfg.DedupThreshold),
		ontology:    ontology,
		concurrency: cfg.FallbackConcurrency,
	}
}

type Result struct {
	Records []models.Record
	Report  Report
}

// Merge runs concatenate -> normalize -> dedup -> sort -> QA. Records are
// never dropped for failing QA. The only error is context cancellation.
func (e *Engine) Merge(ctx context.Context, tables, kvs, narrative []models.Record) (Result, error) {
	all := make([]models.Record, 0, len(tables)+len(kvs)+len(narrative))
	all = append(all, tables...)
	all = append(all, kvs...)
	all = append(all, narrative...)

	if err := e.normalize(ctx, all); err != nil {
		return Result{}, err
	}

	kept, removed := e.dedup.Dedupe(all)
	reassigned := ensureUnique(kept)
	models.SortRecords(kept)

	report := e.check(kept, reassigned)
	report.DuplicatesRemoved = removed

	logger.FromContext(ctx).Debug("merge complete",
		"input", len(all), "kept", len(kept), "duplicates", removed,
		"failed", report.Failed, "warnings", report.Warnings)
	return Result{Records: kept, Report: report}, nil
}

func (e *Engine) normalize(ctx context.Context, records []models.Record) error {
	pending := make(map[string][]int)
	var order []string

	for i := range records {
		r := &records[i]
		if r.Value == "" {
			r.Flags |= models.FlagEmptyValue
			continue
		}
		res, ok := units.Parse(r.Value)
		if ok {
			apply(r, res)
			continue
		}
		if r.Section != models.SectionNarrative && e.normalizer.HasFallback() && units.NeedsFallback(r.Value) {
			if _, seen := pending[r.Value]; !seen {
				order = append(order, r.Value)
			}
			pending[r.Value] = append(pending[r.Value], i)
			continue
		}
		apply(r, res)
	}
	if len(order) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		results = make(map[string]units.Result, len(order))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, raw := range order {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := e.normalizer.Classify(gctx, raw)
			mu.Lock()
			results[raw] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("unit fallback interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for raw, idxs := range pending {
		res := results[raw]
		for _, i := range idxs {
			apply(&records[i], res)
		}
	}
	return nil
}

func apply(r *models.Record, res units.Result) {
	if res.Value != nil {
		v := *res.Value
		r.NumericValue = &v
	}
	switch {
	case res.Unit != "":
		r.Unit = res.Unit
	case r.Unit != "":
		r.Unit = units.CanonicalUnit(r.Unit)
	}
	if res.LowConfidence() {
		r.Flags |= models.FlagLowConfidenceUnit
	}
}

// ensureUnique moves any record whose (page, section, row_id) is already
// taken to the next free row_id of its slot. Returns the moved records' new refs.
func ensureUnique(records []models.Record) map[models.RecordRef]int {
	type slot struct {
		page    int
		section models.Section
	}
	taken := make(map[models.RecordRef]bool, len(records))
	maxID := make(map[slot]int)
	for _, r := range records {
		s := slot{r.Page, r.Section}
		if cur, ok := maxID[s]; !ok || r.RowID > cur {
			maxID[s] = r.RowID
		}
	}

	reassigned := make(map[models.RecordRef]int)
	for i := range records {
		ref := records[i].Ref()
		if !taken[ref] {
			taken[ref] = true
			continue
		}
		s := slot{records[i].Page, records[i].Section}
		maxID[s]++
		records[i].RowID = maxID[s]
		taken[records[i].Ref()] = true
		reassigned[records[i].Ref()] = ref.RowID
	}
	return reassigned
}

func (e *Engine) check(records []models.Record, reassigned map[models.RecordRef]int) Report {
	report := Report{TotalRecords: len(records), Failures: []Failure{}}

	for _, r := range records {
		ref := r.Ref()
		failed := false
		fail := func(c Check, sev Severity, format string, args ...any) {
			report.Failures = append(report.Failures, Failure{Ref: ref, Check: c, Severity: sev, Reason: fmt.Sprintf(format, args...)})
			if sev == SeverityError {
				failed = true
			} else {
				report.Warnings++
			}
		}

		if old, ok := reassigned[ref]; ok {
			fail(CheckRowIDReassigned, SeverityWarning, "row_id %d collided and was reassigned", old)
		}
		if r.Value == "" {
			fail(CheckEmptyValue, SeverityWarning, "empty value")
		}

		numeric := units.LooksNumeric(r.Value)
		switch {
		case numeric && r.NumericValue == nil:
			fail(CheckNumericParseability, SeverityError, "value %q looks numeric but could not be parsed", r.Value)
		case numeric && r.Unit == "" && !units.IsBareCount(r.Value):
			fail(CheckUnitPresence, SeverityError, "numeric value %q has no unit", r.Value)
		case !numeric && r.NumericValue == nil && r.Section != models.SectionNarrative && units.NeedsFallback(r.Value):
			fail(CheckUnresolvedValue, SeverityWarning, "value %q could not be normalized", r.Value)
		}

		if r.Flags.Has(models.FlagLowConfidenceUnit) {
			fail(CheckLowConfidenceUnit, SeverityWarning, "unit %q resolved by fallback classifier", r.Unit)
		}
		if r.Context != "" && !e.ontology.Known(r.Context) {
			fail(CheckKnownContext, SeverityWarning, "context %q is not a recognized label", r.Context)
		}

		if failed {
			report.Failed++
		}
	}
	report.Passed = report.TotalRecords - report.Failed
	return report
}
