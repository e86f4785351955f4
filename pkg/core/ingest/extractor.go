package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/metrics"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/store"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

const DefaultConcurrency = 4

// Extractor runs document analysis over every page of a document.
type Extractor struct {
	audit       store.AuditStore
	metrics     *metrics.Metrics
	concurrency int
}

// NewExtractor builds an extractor. A nil audit store disables auditing.
func NewExtractor(audit store.AuditStore, m *metrics.Metrics, concurrency int) *Extractor {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Extractor{audit: audit, metrics: m, concurrency: concurrency}
}

// Extract analyzes pages concurrently and returns them ordered by page
// number. Page-level failures are recorded on the page, never returned; the
// only errors are cancellation and ErrNoContent.
func (e *Extractor) Extract(ctx context.Context, jobID string, doc DocumentAnalyzer) ([]models.PageBlocks, error) {
	start := time.Now()
	defer e.metrics.Since("extract", start)

	n := doc.NumPages()
	pages := make([]models.PageBlocks, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := 1; i <= n; i++ {
		page := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pb := e.extractPage(gctx, doc, page)
			if err := gctx.Err(); err != nil {
				return err
			}
			pages[page-1] = pb
			e.writeAudit(gctx, jobID, pb)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, p := range pages {
		if hasContent(p) {
			return pages, nil
		}
	}
	return pages, fmt.Errorf("%w (%d pages)", ErrNoContent, n)
}

func (e *Extractor) extractPage(ctx context.Context, doc DocumentAnalyzer, page int) models.PageBlocks {
	log := logger.FromContext(ctx).With("page", page)
	pb := models.PageBlocks{Page: page}

	analysis, aerr := doc.Analyze(ctx, page)
	lines, lerr := doc.DetectText(ctx, page)

	switch {
	case aerr != nil && lerr != nil:
		pb.Skipped = true
		pb.Error = fmt.Sprintf("analyze: %v; detect text: %v", aerr, lerr)
		log.Warn("page skipped", "error", pb.Error)
		e.metrics.Page(metrics.PageSkipped)
		return pb
	case aerr != nil:
		pb.TextOnly = true
		pb.Error = fmt.Sprintf("analyze: %v", aerr)
		log.Warn("layout analysis failed, using text only", "error", aerr)
		e.metrics.Page(metrics.PageTextOnly)
	case lerr != nil:
		pb.Error = fmt.Sprintf("detect text: %v", lerr)
		log.Warn("text detection failed", "error", lerr)
		e.metrics.Page(metrics.PageAnalyzed)
	default:
		e.metrics.Page(metrics.PageAnalyzed)
	}

	pb.Tables = analysis.Tables
	pb.KeyValues = analysis.KeyValues
	pb.Lines = dropConsumed(lines, analysis)
	for i := range pb.Tables {
		pb.Tables[i].Page, pb.Tables[i].Index = page, i
	}
	for i := range pb.KeyValues {
		pb.KeyValues[i].Page, pb.KeyValues[i].Index = page, i
	}
	for i := range pb.Lines {
		pb.Lines[i].Page = page
	}

	log.Debug("page extracted", "tables", len(pb.Tables), "key_values", len(pb.KeyValues), "lines", len(pb.Lines))
	return pb
}

func (e *Extractor) writeAudit(ctx context.Context, jobID string, pb models.PageBlocks) {
	if e.audit == nil {
		return
	}
	log := logger.FromContext(ctx)
	payload, err := json.Marshal(pb)
	if err != nil {
		log.Error("marshal audit payload", "page", pb.Page, "error", err)
		return
	}
	if err := e.audit.Put(ctx, jobID, pb.Page, payload); err != nil {
		if errors.Is(err, store.ErrAlreadyWritten) {
			log.Warn("audit payload already written", "page", pb.Page)
			return
		}
		log.Error("audit write failed", "page", pb.Page, "error", err)
	}
}

func hasContent(p models.PageBlocks) bool {
	if p.Skipped {
		return false
	}
	if len(p.Tables) > 0 || len(p.KeyValues) > 0 {
		return true
	}
	for _, l := range p.Lines {
		if !l.Blank() {
			return true
		}
	}
	return false
}
