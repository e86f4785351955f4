package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/ingest"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/metrics"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/pipeline"
)

type runOptions struct {
	out           string
	maxIterations int
	metricsOut    string
	offline       bool
}

func runCmd(g *globalOptions) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run the extraction pipeline on a PDF, HTML or Markdown document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd.Context(), cmd.OutOrStdout(), g, opts, args[0])
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the result JSON here instead of stdout")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "Override loop.max_iterations")
	cmd.Flags().StringVar(&opts.metricsOut, "metrics-out", "", "Write Prometheus metrics to this textfile")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Skip the LLM: map and merge the raw blocks only")
	return cmd
}

func runExtract(ctx context.Context, stdout io.Writer, g *globalOptions, opts runOptions, path string) error {
	cfg, log, err := g.load()
	if err != nil {
		return err
	}
	if opts.maxIterations > 0 {
		cfg.Loop.MaxIterations = opts.maxIterations
		if cfg.Loop.MinIterations > opts.maxIterations {
			cfg.Loop.MinIterations = opts.maxIterations
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithLogger(ctx, log)

	m := metrics.New()
	orch, closer, err := pipeline.Build(ctx, cfg, m, opts.offline)
	if err != nil {
		return err
	}
	defer closer.Close()

	doc, err := ingest.Open(path)
	if err != nil {
		return err
	}

	session := pipeline.NewSession(log, cfg.Loop.EventBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range session.Events.Events() {
			session.Log.Info("progress", "type", e.Type, "iteration", e.Iteration, "step", e.Step, "score", e.Score, "detail", e.Detail, "timing_ms", e.TimingMs)
		}
	}()

	res, err := orch.Run(ctx, session, doc)
	<-done
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if opts.out == "" {
		fmt.Fprintln(stdout, string(data))
	} else if err := os.WriteFile(opts.out, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	} else {
		log.Info("result written", "path", opts.out, "records", len(res.Records))
	}

	if opts.metricsOut != "" {
		if err := m.WriteTextfile(opts.metricsOut); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
