// Package chunk groups narrative text lines into token-bounded paragraphs and
// partitions raw page blocks into the Table, KeyValue and Narrative batches.
package chunk

import (
	"fmt"
	"strings"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

const (
	DefaultMaxTokens      = 400
	DefaultShortLineWords = 4
)

type Options struct {
	MaxTokens int
	Counter   TokenCounter
	// ShortLineWords: a next line with fewer words than this after a
	// sentence end is treated as a paragraph break.
	ShortLineWords int
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Counter == nil {
		o.Counter = WordEstimator{TokensPerWord: DefaultTokensPerWord}
	}
	if o.ShortLineWords <= 0 {
		o.ShortLineWords = DefaultShortLineWords
	}
	return o
}

// Chunk is a run of consecutive lines from one page.
type Chunk struct {
	ID       string            `json:"id"`
	Page     int               `json:"page"`
	Index    int               `json:"index"`
	Lines    []models.TextLine `json:"lines"`
	Tokens   int               `json:"tokens"`
	Footnote bool              `json:"footnote,omitempty"`
}

func (c Chunk) Text() string {
	parts := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

// Split groups lines into chunks. Every input line lands in exactly one chunk,
// in input order. A chunk closes when the next line would push it over
// MaxTokens, after a sentence-ending line followed by a blank or short line,
// on a page change, or when lines switch between body text and footnotes.
// Blank lines never trigger the footnote switch and stay with the preceding text.
func Split(lines []models.TextLine, opts Options) []Chunk {
	opts = opts.withDefaults()

	var (
		chunks       []Chunk
		buf          []models.TextLine
		tokens       int
		footnote     bool
		hasContent   bool
		breakPending bool
		perPage      = make(map[int]int)
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		page := buf[0].Page
		idx := perPage[page]
		perPage[page]++
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("p%d-c%d", page, idx),
			Page:     page,
			Index:    idx,
			Lines:    buf,
			Tokens:   tokens,
			Footnote: footnote,
		})
		buf, tokens, hasContent, breakPending, footnote = nil, 0, false, false, false
	}

	for i, line := range lines {
		blank := line.Blank()
		if len(buf) > 0 {
			switch {
			case line.Page != buf[0].Page:
				flush()
			case !blank && hasContent && line.Footnote != footnote:
				flush()
			case !blank && breakPending:
				flush()
			}
		}

		n := opts.Counter.CountTokens(line.Text)
		if len(buf) > 0 && tokens+n > opts.MaxTokens {
			flush()
		}

		buf = append(buf, line)
		tokens += n
		if !blank {
			if !hasContent {
				footnote = line.Footnote
				hasContent = true
			}
			breakPending = endsSentence(line.Text) && i+1 < len(lines) && isParagraphBreak(lines[i+1], opts.ShortLineWords)
		}
	}
	flush()
	return chunks
}

func endsSentence(text string) bool {
	t := strings.TrimRight(strings.TrimSpace(text), `"')]”’`)
	if t == "" {
		return false
	}
	switch t[len(t)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

func isParagraphBreak(next models.TextLine, shortWords int) bool {
	return next.Blank() || len(strings.Fields(next.Text)) < shortWords
}
