package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, caption, figcaption, dt, dd"

// HTMLAnalyzer reads HTML documents. Elements with class "page" are pages;
// without them the whole body is one page. Top-level <table>s become table
// blocks and <dl> pairs plus "Key: value" lines become key-value blocks.
type HTMLAnalyzer struct {
	pages []*goquery.Selection
}

var _ DocumentAnalyzer = (*HTMLAnalyzer)(nil)

func NewHTMLAnalyzer(data []byte) (*HTMLAnalyzer, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	a := &HTMLAnalyzer{}
	doc.Find(".page").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(".page").Length() == 0 {
			a.pages = append(a.pages, s)
		}
	})
	if len(a.pages) == 0 {
		body := doc.Find("body")
		if body.Length() == 0 {
			body = doc.Selection
		}
		a.pages = append(a.pages, body)
	}
	return a, nil
}

func (a *HTMLAnalyzer) NumPages() int { return len(a.pages) }

func (a *HTMLAnalyzer) Analyze(ctx context.Context, page int) (Analysis, error) {
	if err := checkPage(a, page); err != nil {
		return Analysis{}, err
	}
	sel := a.pages[page-1]
	var out Analysis

	sel.Find("table").Each(func(_ int, table *goquery.Selection) {
		if table.ParentsFiltered("table").Length() > 0 {
			return
		}
		var rows [][]string
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			if tr.Closest("table").Get(0) != table.Get(0) {
				return
			}
			var cells []string
			tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, CleanLine(cell.Text()))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) > 0 {
			out.Tables = append(out.Tables, models.TableBlock{Page: page, Index: len(out.Tables), Rows: rows})
		}
	})

	sel.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		dl.Find("dt").Each(func(_ int, dt *goquery.Selection) {
			key := strings.TrimSuffix(CleanLine(dt.Text()), ":")
			value := CleanLine(dt.NextFiltered("dd").Text())
			if key != "" {
				out.KeyValues = append(out.KeyValues, models.KeyValueBlock{Page: page, Index: len(out.KeyValues), Key: key, Value: value})
			}
		})
	})

	lines, err := a.DetectText(ctx, page)
	if err != nil {
		return Analysis{}, err
	}
	for _, kv := range keyValuesFromLines(page, lines) {
		kv.Index = len(out.KeyValues)
		out.KeyValues = append(out.KeyValues, kv)
	}
	return out, ctx.Err()
}

func (a *HTMLAnalyzer) DetectText(ctx context.Context, page int) ([]models.TextLine, error) {
	if err := checkPage(a, page); err != nil {
		return nil, err
	}
	sel := a.pages[page-1].Clone()
	sel.Find("table, dl").Remove()

	var raw []string
	blocks := sel.Find(blockSelector)
	blocks.Each(func(_ int, s *goquery.Selection) {
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		raw = append(raw, strings.Split(s.Text(), "\n")...)
		raw = append(raw, "")
	})
	if blocks.Length() == 0 {
		raw = strings.Split(sel.Text(), "\n")
	}
	return toLines(page, raw), ctx.Err()
}
