package ingest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/ArjunTewari/PDFTableExtractor/pkg/models"
)

// PDFAnalyzer reads the PDF text layer. Glyphs are grouped into rows by Y
// and split into cells at wide horizontal gaps; runs of multi-cell rows
// become tables. Scanned pages without a text layer yield nothing.
type PDFAnalyzer struct {
	// RowTolerance is the max Y distance (points) between glyphs of one row.
	RowTolerance float64
	// CellGap is the horizontal gap, in multiples of the font size, that
	// separates two cells.
	CellGap float64

	reader *pdf.Reader
	mu     sync.Mutex // the reader is not safe for concurrent use
	cache  map[int][][]string
}

var _ DocumentAnalyzer = (*PDFAnalyzer)(nil)

func NewPDFAnalyzer(data []byte) (*PDFAnalyzer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &PDFAnalyzer{
		RowTolerance: 2.0,
		CellGap:      1.5,
		reader:       r,
		cache:        make(map[int][][]string),
	}, nil
}

func (a *PDFAnalyzer) NumPages() int { return a.reader.NumPage() }

// rows returns the page's rows of cells, top to bottom.
func (a *PDFAnalyzer) rows(n int) (rows [][]string, err error) {
	if err := checkPage(a, n); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if cached, ok := a.cache[n]; ok {
		return cached, nil
	}

	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("pdf page %d: %v", n, r)
		}
	}()
	page := a.reader.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("pdf page %d: missing page object", n)
	}
	rows = splitCells(groupRows(page.Content().Text, a.RowTolerance), a.CellGap)
	a.cache[n] = rows
	return rows, nil
}

func (a *PDFAnalyzer) Analyze(ctx context.Context, page int) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	rows, err := a.rows(page)
	if err != nil {
		return Analysis{}, err
	}
	return detectBlocks(page, rows), nil
}

func (a *PDFAnalyzer) DetectText(ctx context.Context, page int) ([]models.TextLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := a.rows(page)
	if err != nil {
		return nil, err
	}
	raw := make([]string, len(rows))
	for i, cells := range rows {
		raw[i] = strings.Join(cells, " ")
	}
	return toLines(page, raw), nil
}

// groupRows buckets glyphs by baseline and orders rows top to bottom and
// glyphs left to right.
func groupRows(texts []pdf.Text, tolerance float64) [][]pdf.Text {
	type bucket struct {
		y     float64
		texts []pdf.Text
	}
	var buckets []*bucket
	for _, t := range texts {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		var hit *bucket
		for _, b := range buckets {
			if t.Y >= b.y-tolerance && t.Y <= b.y+tolerance {
				hit = b
				break
			}
		}
		if hit == nil {
			hit = &bucket{y: t.Y}
			buckets = append(buckets, hit)
		}
		hit.texts = append(hit.texts, t)
	}

	// PDF Y grows upwards.
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].y > buckets[j].y })
	rows := make([][]pdf.Text, len(buckets))
	for i, b := range buckets {
		sort.SliceStable(b.texts, func(x, y int) bool { return b.texts[x].X < b.texts[y].X })
		rows[i] = b.texts
	}
	return rows
}

func glyphWidth(t pdf.Text) float64 {
	if t.W > 0 {
		return t.W
	}
	// Fonts without width tables report zero; assume half an em per rune.
	return 0.5 * fontSize(t) * float64(len([]rune(t.S)))
}

func fontSize(t pdf.Text) float64 {
	if t.FontSize > 0 {
		return t.FontSize
	}
	return 10
}

// splitCells joins glyphs into words and words into cells.
func splitCells(rows [][]pdf.Text, cellGap float64) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		var (
			cells []string
			cur   strings.Builder
		)
		for i, t := range row {
			if i > 0 {
				prev := row[i-1]
				gap := t.X - (prev.X + glyphWidth(prev))
				fs := fontSize(prev)
				switch {
				case gap > cellGap*fs:
					cells = append(cells, strings.TrimSpace(cur.String()))
					cur.Reset()
				case gap > 0.15*fs:
					cur.WriteByte(' ')
				}
			}
			cur.WriteString(t.S)
		}
		cells = append(cells, strings.TrimSpace(cur.String()))
		kept := cells[:0]
		for _, c := range cells {
			if c = CleanLine(c); c != "" {
				kept = append(kept, c)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// detectBlocks finds tables and key-values among a page's rows. A table is
// a run of at least two consecutive multi-cell rows; a two-cell row whose
// first cell ends in a colon is a key-value pair.
func detectBlocks(page int, rows [][]string) Analysis {
	var (
		a   Analysis
		run [][]string
	)
	flush := func() {
		if len(run) >= 2 {
			a.Tables = append(a.Tables, models.TableBlock{Page: page, Index: len(a.Tables), Rows: alignHeader(run)})
		}
		run = nil
	}
	for _, cells := range rows {
		if len(cells) == 2 && strings.HasSuffix(cells[0], ":") {
			flush()
			a.KeyValues = append(a.KeyValues, models.KeyValueBlock{
				Page: page, Index: len(a.KeyValues),
				Key:   strings.TrimSpace(strings.TrimSuffix(cells[0], ":")),
				Value: cells[1],
			})
			continue
		}
		if len(cells) >= 2 {
			run = append(run, cells)
			continue
		}
		flush()
		if k, v, ok := SplitKeyValue(cells[0]); ok && !IsFootnote(cells[0]) {
			a.KeyValues = append(a.KeyValues, models.KeyValueBlock{Page: page, Index: len(a.KeyValues), Key: k, Value: v})
		}
	}
	flush()
	return a
}

// alignHeader right-aligns a short header row: statements usually leave the
// row-label column header blank.
func alignHeader(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	if h := rows[0]; len(h) < width {
		padded := make([]string, width-len(h), width)
		rows[0] = append(padded, h...)
	}
	return rows
}
