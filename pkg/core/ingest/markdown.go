package ingest

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

// MarkdownAnalyzer reads Markdown or plain text. Pages are separated by form
// feeds; GFM pipe tables become table blocks and "Key: value" lines become
// key-value blocks.
type MarkdownAnalyzer struct {
	pages []mdPage
}

type mdPage struct {
	tables [][][]string
	lines  []string
}

var _ DocumentAnalyzer = (*MarkdownAnalyzer)(nil)

var (
	footnoteDefRe = regexp.MustCompile(`(?m)^(\s*)\[\^`)
	emphasisRe    = regexp.MustCompile("\\*\\*|__|`")
)

func NewMarkdownAnalyzer(data []byte) *MarkdownAnalyzer {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	chunks := bytes.Split(data, []byte("\f"))
	a := &MarkdownAnalyzer{pages: make([]mdPage, 0, len(chunks))}
	for _, chunk := range chunks {
		a.pages = append(a.pages, parseMarkdownPage(md, chunk))
	}
	return a
}

func parseMarkdownPage(md goldmark.Markdown, src []byte) mdPage {
	// Keep "[^1]: note" lines as text instead of link reference definitions.
	src = footnoteDefRe.ReplaceAll(src, []byte(`$1\[^`))

	var p mdPage
	doc := md.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *extast.Table:
			p.tables = append(p.tables, tableRows(node, src))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock, *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				line := strings.TrimPrefix(strings.TrimSpace(string(seg.Value(src))), `\`)
				p.lines = append(p.lines, emphasisRe.ReplaceAllString(line, ""))
			}
			if _, tight := node.(*ast.TextBlock); !tight {
				p.lines = append(p.lines, "")
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return p
}

func tableRows(t *extast.Table, src []byte) [][]string {
	var rows [][]string
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for c := row.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, CleanLine(inlineText(c, src)))
		}
		rows = append(rows, cells)
	}
	return rows
}

// inlineText concatenates the text segments under n.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func (a *MarkdownAnalyzer) NumPages() int { return len(a.pages) }

func (a *MarkdownAnalyzer) Analyze(ctx context.Context, page int) (Analysis, error) {
	if err := checkPage(a, page); err != nil {
		return Analysis{}, err
	}
	p := a.pages[page-1]
	var out Analysis
	for _, rows := range p.tables {
		out.Tables = append(out.Tables, models.TableBlock{Page: page, Index: len(out.Tables), Rows: rows})
	}
	out.KeyValues = keyValuesFromLines(page, toLines(page, p.lines))
	return out, ctx.Err()
}

func (a *MarkdownAnalyzer) DetectText(ctx context.Context, page int) ([]models.TextLine, error) {
	if err := checkPage(a, page); err != nil {
		return nil, err
	}
	return toLines(page, a.pages[page-1].lines), ctx.Err()
}
