package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/agent"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/chunk"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/config"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/coverage"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/extract"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/ingest"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/merge"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/metrics"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/prompt"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/store"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/units"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/validate"
)

// ChunkOptions builds the chunker settings named in cfg.
func ChunkOptions(cfg *config.Config) (chunk.Options, error) {
	counter, err := chunk.NewCounter(cfg.Chunk.TokenCounter, cfg.Chunk.TokensPerWord, cfg.Chunk.Encoding)
	if err != nil {
		return chunk.Options{}, err
	}
	return chunk.Options{MaxTokens: cfg.Chunk.MaxTokens, Counter: counter}, nil
}

// Build assembles an orchestrator from configuration. Offline skips every
// LLM dependency. The returned closer releases the audit store.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, offline bool) (*Orchestrator, io.Closer, error) {
	chunking, err := ChunkOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	validator, err := validate.New()
	if err != nil {
		return nil, nil, err
	}
	audit, closer, err := store.Open(ctx, cfg.AuditOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("open audit store: %w", err)
	}
	extractor := ingest.NewExtractor(audit, m, cfg.Extract.PageConcurrency)

	mergeCfg := merge.Config{
		DedupThreshold:      cfg.Merge.DedupThreshold,
		KnownContexts:       cfg.Merge.KnownContexts,
		FallbackConcurrency: cfg.Merge.FallbackConcurrency,
	}
	if offline {
		engine := merge.NewEngine(units.NewNormalizer(nil), mergeCfg)
		return NewOrchestrator(extractor, nil, engine, validator, m, chunking), closer, nil
	}

	prompts, err := prompt.Default()
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	if cfg.PromptsDir != "" {
		if err := prompts.LoadFromDirectory(cfg.PromptsDir); err != nil {
			closer.Close()
			return nil, nil, fmt.Errorf("load prompt overrides: %w", err)
		}
	}
	if err := prompts.Require(prompt.RequiredIDs...); err != nil {
		closer.Close()
		return nil, nil, err
	}

	manager, err := agent.NewManagerFromSettings(cfg.LLM.Config, cfg.ProviderSettings())
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	logger.FromContext(ctx).Debug("llm routing", "active_provider", manager.GetActiveProvider(), "prompts", prompts.Count())
	classifier := extract.NewUnitClassifier(manager.Generator(agent.RoleUnitClassifier), prompts)
	engine := merge.NewEngine(units.NewNormalizer(classifier), mergeCfg)

	retryDelay, _ := cfg.RetryDelay()
	loop := coverage.NewController(
		extract.NewStructurer(manager.Generator(agent.RoleStructurer), prompts),
		extract.NewVerifier(manager.Generator(agent.RoleVerifier), prompts),
		engine,
		coverage.Config{
			MaxIterations:    cfg.Loop.MaxIterations,
			MinIterations:    cfg.Loop.MinIterations,
			Threshold:        cfg.Loop.CoverageThreshold,
			BatchConcurrency: cfg.Loop.BatchConcurrency,
			RetryDelay:       retryDelay,
		},
		m,
	)
	return NewOrchestrator(extractor, loop, engine, validator, m, chunking), closer, nil
}
