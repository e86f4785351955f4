package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/chunk"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/ingest"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/logger"
	"github.com/ArjunTewari/PDFTableExtractor/pkg/core/pipeline"
)

func chunkCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chunk <file>",
		Short: "Print narrative chunk boundaries for tuning the token budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			opts, err := pipeline.ChunkOptions(cfg)
			if err != nil {
				return err
			}
			doc, err := ingest.Open(args[0])
			if err != nil {
				return err
			}
			ctx := logger.ContextWithLogger(cmd.Context(), log)
			pages, err := ingest.NewExtractor(nil, nil, cfg.Extract.PageConcurrency).Extract(ctx, "chunk", doc)
			if err != nil {
				return err
			}

			b := chunk.PartitionPages(pages, opts)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "pages=%d tables=%d key_values=%d chunks=%d max_tokens=%d\n",
				len(pages), len(b.Tables), len(b.KeyValues), len(b.Narrative), cfg.Chunk.MaxTokens)
			for _, c := range b.Narrative {
				marker := ""
				if c.Footnote {
					marker = " footnote"
				}
				fmt.Fprintf(w, "%-10s tokens=%-4d lines=%-3d%s | %s\n", c.ID, c.Tokens, len(c.Lines), marker, preview(c))
			}
			return nil
		},
	}
}

func preview(c chunk.Chunk) string {
	text := strings.Join(strings.Fields(c.Text()), " ")
	if r := []rune(text); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return text
}
